package print_test

import (
	"bytes"
	"testing"

	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
	"github.com/specialistvlad/flowgrid/internal/testutil"
	"github.com/specialistvlad/flowgrid/modules/print"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrint(t *testing.T) {
	testCases := []struct {
		name string
		kv   []string
		want string
	}{
		{
			name: "attributes in declaration order",
			kv:   []string{"shape", "print", "b", `"two"`, "a", `1 + 1`},
			want: "      b = \"two\"\n      a = \"2\"\n",
		},
		{
			name: "no attributes",
			kv:   []string{"shape", "print"},
			want: "      (null)\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, logs := testutil.Context(t)
			var out bytes.Buffer
			reg := registry.New(nil)
			reg.Use(&print.Module{Out: &out})
			h, ok := reg.Lookup(print.Shape)
			require.True(t, ok)

			node := testutil.Node("p", tc.kv...)
			require.NoError(t, h.Execute(ctx, node, runctx.New("r", node, nil), map[string]any{}))

			assert.Equal(t, tc.want, out.String())
			assert.Contains(t, logs.String(), "Printing input")
		})
	}
}
