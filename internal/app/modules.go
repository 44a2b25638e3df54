package app

import (
	"io"

	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/modules/env"
	"github.com/specialistvlad/flowgrid/modules/join"
	"github.com/specialistvlad/flowgrid/modules/loop"
	"github.com/specialistvlad/flowgrid/modules/output"
	"github.com/specialistvlad/flowgrid/modules/print"
	"github.com/specialistvlad/flowgrid/modules/request"
	"github.com/specialistvlad/flowgrid/modules/socketio"
	"github.com/specialistvlad/flowgrid/modules/sqlexec"
	"github.com/specialistvlad/flowgrid/modules/start"
	"github.com/specialistvlad/flowgrid/modules/variable"
)

// coreModules is the definitive list of all modules that are compiled into
// the flowgrid binary.
func coreModules(outW io.Writer) []registry.Module {
	return []registry.Module{
		&start.Module{},
		&loop.Module{},
		&join.Module{},
		&variable.Module{},
		&output.Module{},
		&env.Module{},
		&print.Module{Out: outW},
		&request.Module{},
		&sqlexec.Module{},
		&socketio.Module{},
	}
}
