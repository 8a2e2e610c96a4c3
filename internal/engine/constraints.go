package engine

import (
	"fmt"

	"flow-validator/internal/graph"
	"flow-validator/internal/model"
)

// normalizeConstraints validates a statement's constraints and resolves their
// links against the graph. A statement with none gets connectivity.
func normalizeConstraints(g *graph.Graph, in []model.Constraint) ([]model.Constraint, error) {
	if len(in) == 0 {
		return []model.Constraint{{Type: model.ConstraintConnectivity}}, nil
	}
	out := make([]model.Constraint, 0, len(in))
	for i, c := range in {
		switch c.Type {
		case model.ConstraintConnectivity, model.ConstraintIsolation:
		case model.ConstraintPathLength:
			if c.MaxLinks < 0 {
				return nil, model.Configf("constraint %d: max_links must not be negative", i)
			}
		case model.ConstraintLinkAvoidance:
			if len(c.Links) == 0 {
				return nil, model.Configf("constraint %d: link_avoidance lists no links", i)
			}
			links, err := resolveLinks(g, c.Links)
			if err != nil {
				return nil, fmt.Errorf("constraint %d: %w", i, err)
			}
			c.Links = links
		default:
			return nil, model.Configf("constraint %d: unknown type %q", i, c.Type)
		}
		out = append(out, c)
	}
	return out, nil
}

// checkConstraint reports whether paths satisfy c and, if not, a path that
// shows why. Connectivity violations have no counter-example.
func checkConstraint(c model.Constraint, paths []model.Path) (ok bool, counter *model.Path) {
	switch c.Type {
	case model.ConstraintConnectivity:
		return len(paths) > 0, nil
	case model.ConstraintIsolation:
		if len(paths) > 0 {
			return false, &paths[0]
		}
	case model.ConstraintPathLength:
		for i := range paths {
			if len(paths[i].Links) > c.MaxLinks {
				return false, &paths[i]
			}
		}
	case model.ConstraintLinkAvoidance:
		avoid := make(map[string]bool, len(c.Links))
		for _, l := range c.Links {
			avoid[l.Key()] = true
		}
		for i := range paths {
			for _, l := range paths[i].Links {
				if avoid[l.Key()] {
					return false, &paths[i]
				}
			}
		}
	}
	return true, nil
}

func resolveLinks(g *graph.Graph, links []model.Link) ([]model.Link, error) {
	out := make([]model.Link, 0, len(links))
	for _, l := range links {
		found, ok := g.ResolveLink(l)
		if !ok {
			return nil, model.Configf("unknown link %s", l)
		}
		out = append(out, found)
	}
	return out, nil
}
