// Package flowhcl loads flow definitions written in HCL into flow graphs.
package flowhcl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/expr"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/fsutil"
)

// StartShape is the shape preferred as the root when a flow names none.
const StartShape = "start"

// DefaultFlowName is used when no file declares a flow block.
const DefaultFlowName = "default"

// FunctionTable reports which functions expressions may call.
type FunctionTable interface {
	HasFunction(name string) bool
	CalledFunctions(text string) ([]string, error)
}

// Loader reads flow definitions from .hcl files.
type Loader struct {
	functions FunctionTable
}

// NewLoader creates a loader that validates function calls against fns. A
// nil fns selects the default HCL evaluator's table.
func NewLoader(fns FunctionTable) *Loader {
	if fns == nil {
		fns = expr.NewHCL()
	}
	return &Loader{functions: fns}
}

// fileRoot decodes the top-level blocks of one file. Unknown blocks are rejected.
type fileRoot struct {
	Flows []*flowBlock `hcl:"flow,block"`
	Nodes []*nodeBlock `hcl:"node,block"`
	Edges []*edgeBlock `hcl:"edge,block"`
}

type flowBlock struct {
	Name        string  `hcl:"name,label"`
	Root        *string `hcl:"root,optional"`
	Description *string `hcl:"description,optional"`
}

type nodeBlock struct {
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

type edgeBlock struct {
	From      string         `hcl:"from,label"`
	To        string         `hcl:"to,label"`
	Condition hcl.Expression `hcl:"condition,optional"`
	Exception *string        `hcl:"exception,optional"`
	Transmit  *bool          `hcl:"transmit_variables,optional"`
}

// pendingEdge is an edge block with the file it came from, resolved once all
// nodes are known.
type pendingEdge struct {
	block *edgeBlock
	file  *hcl.File
	path  string
}

// Load parses every .hcl file found under paths and assembles one sealed
// graph from them.
func (l *Loader) Load(ctx context.Context, paths ...string) (*flow.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Flow loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no flow files found")
	}
	logger.Debug("Discovered flow files.", "count", len(files))

	parser := hclparse.NewParser()
	var (
		decl  *flowBlock
		nodes []*flow.Node
		edges []pendingEdge
	)
	for _, path := range files {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
		}

		for _, fb := range root.Flows {
			if decl != nil {
				return nil, fmt.Errorf("%s: duplicate flow block %q, flow %q already declared", path, fb.Name, decl.Name)
			}
			decl = fb
		}
		for _, nb := range root.Nodes {
			n, err := l.translateNode(nb, file)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			nodes = append(nodes, n)
		}
		for _, eb := range root.Edges {
			edges = append(edges, pendingEdge{block: eb, file: file, path: path})
		}
	}

	name := DefaultFlowName
	if decl != nil {
		name = decl.Name
	}
	g := flow.NewGraph(name)
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, pe := range edges {
		if err := l.translateEdge(g, pe); err != nil {
			return nil, fmt.Errorf("%s: %w", pe.path, err)
		}
	}

	rootID, err := chooseRoot(g, decl)
	if err != nil {
		return nil, err
	}
	if err := g.SetRoot(rootID); err != nil {
		return nil, err
	}
	if err := g.Seal(); err != nil {
		return nil, err
	}
	if err := g.DetectCycles(); err != nil {
		logger.Warn("Flow contains a cycle; runs are bounded by the dead-cycle ceiling.", "detail", err)
	}

	logger.Debug("Flow loading complete.", "flow", g.Name, "nodes", len(nodes), "edges", len(edges), "root", rootID)
	return g, nil
}

// translateNode converts a node block. Meta keys must be literals; every other
// attribute keeps its expression source.
func (l *Loader) translateNode(nb *nodeBlock, file *hcl.File) (*flow.Node, error) {
	attrs, diags := nb.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("node %q: %w", nb.ID, diags)
	}

	ordered := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		ordered = append(ordered, a)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Range.Start.Byte < ordered[j].Range.Start.Byte
	})

	n := flow.NewNode(nb.ID)
	for _, a := range ordered {
		if flow.IsMetaKey(a.Name) {
			v, err := literal(a)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", nb.ID, err)
			}
			n.Config.Set(a.Name, v)
			continue
		}
		text := string(a.Expr.Range().SliceBytes(file.Bytes))
		if err := l.checkFunctions(text); err != nil {
			return nil, fmt.Errorf("node %q attribute %q: %w", nb.ID, a.Name, err)
		}
		n.Config.Set(a.Name, text)
	}
	if name := n.Config.String(flow.KeyName, ""); name != "" {
		n.Name = name
	}
	return n, nil
}

func (l *Loader) translateEdge(g *flow.Graph, pe pendingEdge) error {
	eb := pe.block
	e, err := g.AddEdge(eb.From, eb.To)
	if err != nil {
		return err
	}
	if eb.Exception != nil {
		routing, err := flow.ParseExceptionRouting(*eb.Exception)
		if err != nil {
			return fmt.Errorf("edge %s -> %s: %w", eb.From, eb.To, err)
		}
		e.Exception = routing
	}
	if eb.Transmit != nil {
		e.Transmit = *eb.Transmit
	}
	if eb.Condition != nil {
		text, err := conditionText(eb.Condition, pe.file)
		if err != nil {
			return fmt.Errorf("edge %s -> %s: %w", eb.From, eb.To, err)
		}
		if err := l.checkFunctions(text); err != nil {
			return fmt.Errorf("edge %s -> %s condition: %w", eb.From, eb.To, err)
		}
		e.Condition = text
	}
	return nil
}

func (l *Loader) checkFunctions(text string) error {
	called, err := l.functions.CalledFunctions(text)
	if err != nil {
		return err
	}
	for _, fn := range called {
		if !l.functions.HasFunction(fn) {
			return fmt.Errorf("call to unknown function %q", fn)
		}
	}
	return nil
}

// conditionText returns the guard expression of an edge. A plain string
// literal holds the expression itself; anything else is the expression.
func conditionText(e hcl.Expression, file *hcl.File) (string, error) {
	if tpl, ok := e.(*hclsyntax.TemplateExpr); ok && tpl.IsStringLiteral() {
		v, diags := tpl.Value(nil)
		if diags.HasErrors() {
			return "", diags
		}
		return v.AsString(), nil
	}
	// gohcl leaves a synthetic null expression for an absent optional attribute.
	if v, diags := e.Value(nil); !diags.HasErrors() && v.IsNull() {
		return "", nil
	}
	return string(e.Range().SliceBytes(file.Bytes)), nil
}

// literal renders a static attribute as a string.
func literal(a *hcl.Attribute) (string, error) {
	v, diags := a.Expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("attribute %q must be a literal value: %w", a.Name, diags)
	}
	if v.IsNull() {
		return "", nil
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return strconv.FormatBool(v.True()), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int64()
			return strconv.FormatInt(i, 10), nil
		}
		return bf.Text('f', -1), nil
	}
	sv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("attribute %q must be a string, number or bool", a.Name)
	}
	return sv.AsString(), nil
}

// chooseRoot picks the declared root, else the first start node, else the
// first node without predecessors.
func chooseRoot(g *flow.Graph, decl *flowBlock) (string, error) {
	if decl != nil && decl.Root != nil && *decl.Root != "" {
		if _, ok := g.Node(*decl.Root); !ok {
			return "", fmt.Errorf("flow %q: root node %q not found", decl.Name, *decl.Root)
		}
		return *decl.Root, nil
	}
	nodes := g.Nodes()
	for _, n := range nodes {
		if n.Shape() == StartShape {
			return n.ID, nil
		}
	}
	for _, n := range nodes {
		if len(n.Incoming()) == 0 {
			return n.ID, nil
		}
	}
	return "", errors.New("cannot determine root node: declare flow.root or a start node")
}
