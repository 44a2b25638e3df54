// Package expr evaluates the expressions found in node configurations and
// edge conditions. Expressions use HCL native syntax evaluated over cty values.
package expr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Evaluator computes the value of an expression against a variable set.
type Evaluator interface {
	Evaluate(text string, vars map[string]any) (any, error)
}

// HCL is an Evaluator for HCL native syntax. Parsed expressions are cached,
// so one instance should be shared by the runs of a process.
type HCL struct {
	functions map[string]function.Function
	cache     sync.Map // text -> hclsyntax.Expression
}

var _ Evaluator = (*HCL)(nil)

// NewHCL creates an evaluator with the default function table.
func NewHCL() *HCL {
	return &HCL{functions: defaultFunctions()}
}

func defaultFunctions() map[string]function.Function {
	return map[string]function.Function{
		"abs":        stdlib.AbsoluteFunc,
		"ceil":       stdlib.CeilFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"concat":     stdlib.ConcatFunc,
		"contains":   stdlib.ContainsFunc,
		"distinct":   stdlib.DistinctFunc,
		"element":    stdlib.ElementFunc,
		"flatten":    stdlib.FlattenFunc,
		"floor":      stdlib.FloorFunc,
		"format":     stdlib.FormatFunc,
		"join":       stdlib.JoinFunc,
		"jsondecode": stdlib.JSONDecodeFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"keys":       stdlib.KeysFunc,
		"length":     stdlib.LengthFunc,
		"lookup":     stdlib.LookupFunc,
		"lower":      stdlib.LowerFunc,
		"max":        stdlib.MaxFunc,
		"merge":      stdlib.MergeFunc,
		"min":        stdlib.MinFunc,
		"range":      stdlib.RangeFunc,
		"replace":    stdlib.ReplaceFunc,
		"reverse":    stdlib.ReverseListFunc,
		"split":      stdlib.SplitFunc,
		"strlen":     stdlib.StrlenFunc,
		"substr":     stdlib.SubstrFunc,
		"title":      stdlib.TitleFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"upper":      stdlib.UpperFunc,
		"values":     stdlib.ValuesFunc,
	}
}

// FunctionNames returns the sorted names of the callable functions.
func (h *HCL) FunctionNames() []string {
	names := make([]string, 0, len(h.functions))
	for name := range h.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasFunction reports whether name is callable from expressions.
func (h *HCL) HasFunction(name string) bool {
	_, ok := h.functions[name]
	return ok
}

// Evaluate parses text and evaluates it with vars in scope. Variables whose
// names are not valid identifiers are not visible to the expression.
func (h *HCL) Evaluate(text string, vars map[string]any) (any, error) {
	e, err := h.parse(text)
	if err != nil {
		return nil, err
	}

	scope := make(map[string]cty.Value, len(vars))
	for name, v := range vars {
		if !hclsyntax.ValidIdentifier(name) {
			continue
		}
		cv, err := ToCty(v)
		if err != nil {
			return nil, fmt.Errorf("variable '%s': %w", name, err)
		}
		scope[name] = cv
	}

	val, diags := e.Value(&hcl.EvalContext{
		Variables: scope,
		Functions: h.functions,
	})
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating %q: %w", text, diags)
	}
	return FromCty(val)
}

// CalledFunctions returns the sorted, unique names of the functions called by
// the expression in text.
func (h *HCL) CalledFunctions(text string) ([]string, error) {
	e, err := h.parse(text)
	if err != nil {
		return nil, err
	}
	found := make(map[string]struct{})
	walkForFunctions(e, found)

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (h *HCL) parse(text string) (hclsyntax.Expression, error) {
	if cached, ok := h.cache.Load(text); ok {
		return cached.(hclsyntax.Expression), nil
	}
	e, diags := hclsyntax.ParseExpression([]byte(text), "expression", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %q: %w", text, diags)
	}
	h.cache.Store(text, e)
	return e, nil
}

// walkForFunctions recursively walks the AST, looking only for function calls.
func walkForFunctions(e hclsyntax.Expression, functions map[string]struct{}) {
	if e == nil {
		return
	}
	switch e := e.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
