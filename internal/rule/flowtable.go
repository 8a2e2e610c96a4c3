package rule

import (
	"fmt"
	"sort"

	"flow-validator/internal/headerspace"
	"flow-validator/internal/model"
)

// FlowTable holds a switch table's rules in descending priority order.
type FlowTable struct {
	ID    int
	rules []*Rule
}

// NewFlowTable compiles every rule and rejects tables with ambiguous
// first-match order (two rules at the same priority).
func NewFlowTable(ft model.FlowTable) (*FlowTable, error) {
	table := &FlowTable{ID: ft.ID}
	seen := make(map[int]int, len(ft.Rules))
	for i, fr := range ft.Rules {
		if prev, dup := seen[fr.Priority]; dup {
			return nil, model.Configf("table %d: rules %d and %d share priority %d", ft.ID, prev, i, fr.Priority)
		}
		seen[fr.Priority] = i

		r, err := NewRule(fr)
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", ft.ID, err)
		}
		for _, e := range r.Effects {
			if e.Kind == EffectGotoTable && e.Table <= ft.ID {
				return nil, model.Configf("table %d: rule priority %d jumps backwards to table %d", ft.ID, fr.Priority, e.Table)
			}
		}
		table.rules = append(table.rules, r)
	}
	sort.SliceStable(table.rules, func(i, j int) bool {
		return table.rules[i].Priority > table.rules[j].Priority
	})
	return table, nil
}

func (t *FlowTable) Rules() []*Rule { return t.rules }

// Transition returns the egresses of the first rule, in priority order, whose
// match overlaps the incoming header space. A nil result means the packet is
// dropped here.
func (t *FlowTable) Transition(inPort model.PortNumber, incoming headerspace.Match) []Egress {
	if incoming.IsEmpty() {
		return nil
	}
	for _, r := range t.rules {
		if egress, ok := r.Apply(inPort, incoming); ok {
			return egress
		}
	}
	return nil
}
