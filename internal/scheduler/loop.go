package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
)

// DefaultLoopItem is the variable the current element is bound to.
const DefaultLoopItem = "item"

// loopPlan is the iteration range of one dispatch. items is nil when the loop
// count came from a number, in which case the item is the index.
type loopPlan struct {
	loop       bool
	items      []any
	start, end int
	indexVar   string
	itemVar    string
}

func (p loopPlan) item(i int) any {
	if p.items == nil {
		return i
	}
	return p.items[i]
}

// resolveLoop evaluates the loop keys of node. A node without loop_count runs
// exactly once.
func (s *Scheduler) resolveLoop(ctx context.Context, node *flow.Node, vars map[string]any) loopPlan {
	text := node.Config.String(flow.KeyLoopCount, "")
	if text == "" {
		return loopPlan{start: 0, end: 1}
	}
	logger := ctxlog.FromContext(ctx)

	plan := loopPlan{
		loop:     true,
		indexVar: node.Config.String(flow.KeyLoopVariable, ""),
		itemVar:  node.Config.String(flow.KeyLoopItem, DefaultLoopItem),
	}

	value, err := s.evaluator.Evaluate(text, vars)
	if err != nil {
		logger.Error("Failed to evaluate loop count.", "node", node.ID, "expression", text, "error", err)
		return plan
	}
	count, items := loopValue(value)
	plan.items = items
	logger.Debug("Loop count resolved.", "node", node.ID, "expression", text, "count", count)
	if count <= 0 {
		return plan
	}

	plan.start = max(node.Config.Int(flow.KeyLoopStart, 0), 0)
	end := node.Config.Int(flow.KeyLoopEnd, -1)
	if end >= 0 {
		plan.end = min(end, count)
	} else {
		plan.end = max(count+end+1, 0)
	}
	return plan
}

// loopValue interprets an evaluated loop_count. Sequences and maps iterate
// their elements (maps in key order); numbers and numeric strings give a
// count. Anything else means no iterations.
func loopValue(v any) (int, []any) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case []any:
		return len(t), t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = t[k]
		}
		return len(items), items
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return flow.ToInt(t, 0), nil
	case bool:
		return 0, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return len(items), items
	}
	return flow.ToInt(fmt.Sprint(v), 0), nil
}
