package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Sentinel strings emitted when a stored rule's JSON cannot be rendered.
const (
	renderInvalidCondition = "Invalid condition format"
	renderUnknownAction    = "Unknown action type"
	renderInvalidTiers     = "Invalid tiered discount"
)

// RenderCondition produces a human-readable description of a condition
// tree. Rendering is forgiving: it works from node shape alone, so a tree
// that fails validation (an unregistered field, an XOR combinator) still
// renders as long as its shape is recognizable.
func RenderCondition(c *Condition) string {
	switch c.kind {
	case ConditionLeaf:
		return FieldLabel(c.Field) + " " + OperatorLabel(c.Operator) + " " + renderValue(c.Value)
	case ConditionGroup:
		parts := make([]string, len(c.Children))
		for i := range c.Children {
			parts[i] = RenderCondition(&c.Children[i])
		}
		return "(" + strings.Join(parts, " "+strings.ToLower(c.Operator)+" ") + ")"
	default:
		return renderInvalidCondition
	}
}

func renderValue(v any) string {
	switch x := v.(type) {
	case string:
		return `"` + x + `"`
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// RenderAction produces a human-readable description of an action spec.
func RenderAction(a *Action) string {
	switch a.Type {
	case ActionApplyPercent:
		if len(a.Args) == 0 {
			return renderUnknownAction
		}
		return fmt.Sprintf("Apply %s%% discount", a.Args[0].String())
	case ActionApplyFixedAmount:
		if len(a.Args) == 0 {
			return renderUnknownAction
		}
		return fmt.Sprintf("Apply %s fixed discount", a.Args[0].String())
	case ActionApplyFreeUnits:
		if len(a.Args) == 0 {
			return renderUnknownAction
		}
		return fmt.Sprintf("Add %s free unit(s)", a.Args[0].String())
	case ActionApplyTieredDiscount:
		if len(a.Tiers) == 0 {
			return renderInvalidTiers
		}
		parts := make([]string, len(a.Tiers))
		for i, t := range a.Tiers {
			upper := "∞"
			if t.MaxQuantity != nil {
				upper = strconv.FormatInt(*t.MaxQuantity, 10)
			}
			parts[i] = fmt.Sprintf("Qty %d-%s: %s%% off",
				t.MinQuantity, upper, strconv.FormatFloat(t.DiscountPercent, 'f', -1, 64))
		}
		return "Tiered discount: " + strings.Join(parts, ", ")
	default:
		return renderUnknownAction
	}
}

// Priority buckets group salience values into coarse urgency bands. Lower
// salience runs first and counts as higher priority.
var priorityBuckets = []struct {
	max   int
	key   string
	label string
}{
	{10, "very_high", "Very High"},
	{20, "high", "High"},
	{30, "medium", "Medium"},
	{40, "low", "Low"},
}

// PriorityBucket returns the distribution key for a salience value.
func PriorityBucket(salience int) string {
	for _, b := range priorityBuckets {
		if salience <= b.max {
			return b.key
		}
	}
	return "very_low"
}

// PriorityDescription returns the display label for a salience value.
func PriorityDescription(salience int) string {
	for _, b := range priorityBuckets {
		if salience <= b.max {
			return b.label
		}
	}
	return "Very Low"
}

// TypeDescription describes how a rule combines with others.
func TypeDescription(stackable bool) string {
	if stackable {
		return "Stackable"
	}
	return "Exclusive"
}

// Summary aggregates a rule collection for list responses.
type Summary struct {
	Total                  int            `json:"total_rules"`
	Active                 int            `json:"active_rules"`
	Inactive               int            `json:"inactive_rules"`
	Stackable              int            `json:"stackable_rules"`
	Exclusive              int            `json:"exclusive_rules"`
	PriorityDistribution   map[string]int `json:"priority_distribution"`
	ActionTypeDistribution map[string]int `json:"action_type_distribution"`
	AverageSalience        float64        `json:"average_salience"`
}

// Summarize computes collection statistics. Actions whose type is not in
// the registry count under "unknown".
func Summarize(list []*Rule) Summary {
	s := Summary{
		PriorityDistribution:   map[string]int{},
		ActionTypeDistribution: map[string]int{},
	}
	salienceSum := 0
	for _, r := range list {
		s.Total++
		if r.Active {
			s.Active++
		} else {
			s.Inactive++
		}
		if r.Stackable {
			s.Stackable++
		} else {
			s.Exclusive++
		}
		s.PriorityDistribution[PriorityBucket(r.Salience)]++

		switch r.Action.Type {
		case ActionApplyPercent, ActionApplyFixedAmount, ActionApplyFreeUnits, ActionApplyTieredDiscount:
			s.ActionTypeDistribution[string(r.Action.Type)]++
		default:
			s.ActionTypeDistribution["unknown"]++
		}
		salienceSum += r.Salience
	}
	if s.Total > 0 {
		avg := float64(salienceSum) / float64(s.Total)
		s.AverageSalience = float64(int(avg*100+0.5)) / 100
	}
	return s
}

// SortBySalience orders rules by ascending salience, preserving relative
// order of equal values.
func SortBySalience(list []*Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Salience < list[j].Salience
	})
}
