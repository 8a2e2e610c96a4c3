package rule

import (
	"strings"

	"flow-validator/internal/headerspace"
	"flow-validator/internal/model"
	"flow-validator/pkg/wellknown"
)

type EffectKind int

const (
	EffectOutput EffectKind = iota
	EffectSetField
	EffectGotoTable
)

// Effect is one step of a rule's ordered action list.
type Effect struct {
	Kind  EffectKind
	Port  model.PortNumber
	Field string
	Value uint64
	Table int
}

type EgressKind int

const (
	EgressPort EgressKind = iota
	EgressTable
)

// Egress is where a packet goes when a rule fires, and the header space it
// carries there.
type Egress struct {
	Kind  EgressKind
	Port  model.PortNumber
	Table int
	Match headerspace.Match
}

type Rule struct {
	Priority int
	// InPort restricts the rule to packets that entered on this port; nil is any port.
	InPort  *model.PortNumber
	Match   headerspace.Match
	Effects []Effect
}

// NewRule validates a flow-rule description and compiles its match and actions.
func NewRule(fr model.FlowRule) (*Rule, error) {
	r := &Rule{Priority: fr.Priority}

	headers := make(map[string]string, len(fr.Match))
	for name, value := range fr.Match {
		if strings.EqualFold(strings.TrimSpace(name), wellknown.InPort) {
			n, err := model.ParsePortNumber(value)
			if err != nil {
				return nil, model.Configf("rule priority %d: in_port: %v", fr.Priority, err)
			}
			if n.Kind == model.InPortPort {
				return nil, model.Configf("rule priority %d: in_port cannot match on itself", fr.Priority)
			}
			r.InPort = &n
			continue
		}
		headers[name] = value
	}
	m, err := headerspace.Parse(headers)
	if err != nil {
		return nil, model.Configf("rule priority %d: %v", fr.Priority, err)
	}
	r.Match = m

	for i, a := range fr.Actions {
		switch a.Type {
		case model.ActionOutput:
			if a.Port.IsPhysical() && a.Port.Value == 0 {
				return nil, model.Configf("rule priority %d: output action %d has no port", fr.Priority, i)
			}
			r.Effects = append(r.Effects, Effect{Kind: EffectOutput, Port: a.Port})
		case model.ActionSetField:
			entry, ok := wellknown.Field(a.Field)
			if !ok {
				return nil, model.Configf("rule priority %d: set_field on unknown field %q", fr.Priority, a.Field)
			}
			iv, wildcard, err := headerspace.ParseValue(entry, a.Value)
			if err != nil || wildcard || iv.Lo != iv.Hi {
				return nil, model.Configf("rule priority %d: set_field %s needs one exact value, got %q", fr.Priority, entry.Name, a.Value)
			}
			r.Effects = append(r.Effects, Effect{Kind: EffectSetField, Field: entry.Name, Value: iv.Lo})
		case model.ActionGotoTable:
			r.Effects = append(r.Effects, Effect{Kind: EffectGotoTable, Table: a.Table})
		case model.ActionDrop:
			if len(fr.Actions) != 1 {
				return nil, model.Configf("rule priority %d: drop must be the only action", fr.Priority)
			}
		default:
			return nil, model.Configf("rule priority %d: unknown action type %q", fr.Priority, a.Type)
		}
	}
	return r, nil
}

// Apply evaluates the rule against an incoming header space. ok is false when
// the rule does not match; a matching rule with no outputs drops the packet.
// An in_port output leaves through inPort.
func (r *Rule) Apply(inPort model.PortNumber, incoming headerspace.Match) (egress []Egress, ok bool) {
	if r.InPort != nil && *r.InPort != inPort {
		return nil, false
	}
	current := headerspace.Intersect(incoming, r.Match)
	if current.IsEmpty() {
		return nil, false
	}
	for _, e := range r.Effects {
		switch e.Kind {
		case EffectSetField:
			current = current.Rewrite(e.Field, headerspace.Exact(e.Value))
		case EffectOutput:
			port := e.Port
			if port.Kind == model.InPortPort {
				port = inPort
			}
			egress = append(egress, Egress{Kind: EgressPort, Port: port, Match: current})
		case EffectGotoTable:
			egress = append(egress, Egress{Kind: EgressTable, Table: e.Table, Match: current})
		}
	}
	return egress, true
}
