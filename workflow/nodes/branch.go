package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input/output keys of the condition node.
const (
	InputIfElseList    = "ifElseList"
	OutputBranchResult = "ifElseResult"
)

// Comparison operators accepted in condition items.
const (
	opEqual          = "equalTo"
	opNotEqual       = "notEqual"
	opGreaterThan    = "greaterThan"
	opGreaterOrEqual = "greaterThanOrEqualTo"
	opLessThan       = "lessThan"
	opLessOrEqual    = "lessThanOrEqualTo"
	opContains       = "include"
	opNotContains    = "notInclude"
	opStartWith      = "startWith"
	opEndWith        = "endWith"
	opIsEmpty        = "isEmpty"
	opIsNotEmpty     = "isNotEmpty"
)

// runBranch evaluates condition groups in order and activates exactly one
// outgoing handle: the first group whose conditions hold, or ELSE. All
// other handles are skipped so their subtrees prune.
func (r *Registry) runBranch(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	groups := sliceParam(p.Params, InputIfElseList)
	if len(groups) == 0 {
		return nil, types.NewError(types.ErrNodeExecution, "condition node has no groups").WithNode(p.Node.ID)
	}

	handles := make([]string, 0, len(groups)+1)
	for i := range groups {
		handles = append(handles, branchHandle(i))
	}
	handles = append(handles, workflow.HandleElse)

	selected := workflow.HandleElse
	for i, raw := range groups {
		group, _ := raw.(map[string]any)
		if group == nil {
			continue
		}
		ok, err := evalGroup(p, group)
		if err != nil {
			return nil, types.AsError(err, types.ErrNodeExecution).WithNode(p.Node.ID)
		}
		if ok {
			selected = branchHandle(i)
			break
		}
	}

	var skip []string
	for _, h := range handles {
		if h != selected {
			skip = append(skip, h)
		}
	}
	return &workflow.NodeResult{
		Outputs:     map[string]any{OutputBranchResult: selected},
		SkipHandles: skip,
	}, nil
}

// branchHandle names the outgoing handle for group i.
func branchHandle(i int) string {
	if i == 0 {
		return workflow.HandleIf
	}
	return fmt.Sprintf("ELSE IF %d", i)
}

// evalGroup combines the group's condition items with its AND/OR junction.
func evalGroup(p *workflow.NodePayload, group map[string]any) (bool, error) {
	junction := strings.ToUpper(stringParam(group, "condition"))
	items := sliceParam(group, "list")
	if len(items) == 0 {
		return false, nil
	}

	result := junction != "OR"
	for _, raw := range items {
		item, _ := raw.(map[string]any)
		if item == nil {
			continue
		}
		left := resolveOperand(p, item["variable"])
		ok, err := evalCondition(left, stringParam(item, "condition"), item["value"])
		if err != nil {
			return false, err
		}
		if junction == "OR" {
			result = result || ok
		} else {
			result = result && ok
		}
	}
	return result, nil
}

// resolveOperand turns a condition's variable field into a concrete value.
// Reference pairs read the live scope; anything else is a literal.
func resolveOperand(p *workflow.NodePayload, raw any) any {
	if pair, ok := asPair(raw); ok {
		v, _ := p.Lookup(pair)
		return v
	}
	return raw
}

func asPair(raw any) ([2]string, bool) {
	switch v := raw.(type) {
	case [2]string:
		return v, true
	case []string:
		if len(v) == 2 {
			return [2]string{v[0], v[1]}, true
		}
	case []any:
		if len(v) == 2 {
			a, aok := v[0].(string)
			b, bok := v[1].(string)
			if aok && bok {
				return [2]string{a, b}, true
			}
		}
	}
	return [2]string{}, false
}

func evalCondition(left any, op string, right any) (bool, error) {
	switch op {
	case opIsEmpty:
		return isEmptyValue(left), nil
	case opIsNotEmpty:
		return !isEmptyValue(left), nil
	case opEqual:
		return types.ValueToString(left) == types.ValueToString(right), nil
	case opNotEqual:
		return types.ValueToString(left) != types.ValueToString(right), nil
	case opGreaterThan, opGreaterOrEqual, opLessThan, opLessOrEqual:
		l, lerr := toNumber(left)
		r, rerr := toNumber(right)
		if lerr != nil || rerr != nil {
			return false, nil
		}
		switch op {
		case opGreaterThan:
			return l > r, nil
		case opGreaterOrEqual:
			return l >= r, nil
		case opLessThan:
			return l < r, nil
		default:
			return l <= r, nil
		}
	case opContains:
		return containsValue(left, right), nil
	case opNotContains:
		return !containsValue(left, right), nil
	case opStartWith:
		return strings.HasPrefix(types.ValueToString(left), types.ValueToString(right)), nil
	case opEndWith:
		return strings.HasSuffix(types.ValueToString(left), types.ValueToString(right)), nil
	default:
		return false, types.NewError(types.ErrNodeExecution, fmt.Sprintf("unknown condition operator %q", op))
	}
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// containsValue matches substrings for strings and membership for arrays.
func containsValue(left, right any) bool {
	needle := types.ValueToString(right)
	if arr, ok := left.([]any); ok {
		for _, item := range arr {
			if types.ValueToString(item) == needle {
				return true
			}
		}
		return false
	}
	return strings.Contains(types.ValueToString(left), needle)
}

func toNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}
