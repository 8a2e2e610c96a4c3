package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"flow-validator/internal/graph"
	"flow-validator/internal/model"
)

func output(n uint32) model.Action {
	return model.Action{Type: model.ActionOutput, Port: model.PhysicalNumber(n)}
}

func link(a string, pa uint32, b string, pb uint32) model.Link {
	return model.Link{Src: model.Physical(a, pa), Dst: model.Physical(b, pb)}
}

// forward sends packets entering on in out of every port in outs.
func forward(in uint32, outs ...uint32) model.FlowRule {
	fr := model.FlowRule{Priority: int(in), Match: map[string]string{"in_port": model.PhysicalNumber(in).String()}}
	for _, o := range outs {
		fr.Actions = append(fr.Actions, output(o))
	}
	return fr
}

func singleTable(id string, ports []uint32, rules ...model.FlowRule) model.Switch {
	return model.Switch{ID: id, Ports: ports, FlowTables: []model.FlowTable{{ID: 0, Rules: rules}}}
}

func mustBuild(t *testing.T, ng model.NetworkGraph) *graph.Graph {
	t.Helper()
	g, err := graph.Build(ng)
	require.NoError(t, err)
	return g
}

// twoSwitches links s1:1 <-> s2:1; s1 forwards 2->1 and s2 forwards 1->2.
func twoSwitches() model.NetworkGraph {
	return model.NetworkGraph{
		Switches: []model.Switch{
			singleTable("s1", []uint32{1, 2}, forward(2, 1)),
			singleTable("s2", []uint32{1, 2}, forward(1, 2)),
		},
		Links: []model.Link{link("s1", 1, "s2", 1)},
	}
}

// ring joins three switches in a cycle. Each floods out of all its ports, and
// port 3 on every switch is a host port.
func ring() model.NetworkGraph {
	flood := model.FlowRule{Priority: 1, Actions: []model.Action{output(1), output(2), output(3)}}
	return model.NetworkGraph{
		Switches: []model.Switch{
			singleTable("s1", []uint32{1, 2, 3}, flood),
			singleTable("s2", []uint32{1, 2, 3}, flood),
			singleTable("s3", []uint32{1, 2, 3}, flood),
		},
		Links: []model.Link{
			link("s1", 1, "s2", 2),
			link("s2", 1, "s3", 2),
			link("s3", 1, "s1", 2),
		},
	}
}

// parallel joins s1 and s2 by two links; traffic from s1:3 to s2:3 may use
// either.
func parallel() model.NetworkGraph {
	return model.NetworkGraph{
		Switches: []model.Switch{
			singleTable("s1", []uint32{1, 2, 3}, forward(3, 1, 2)),
			singleTable("s2", []uint32{1, 2, 3}, forward(1, 3), forward(2, 3)),
		},
		Links: []model.Link{link("s1", 1, "s2", 1), link("s1", 2, "s2", 2)},
	}
}

// series chains s1 - s2 - s3; traffic from s1:3 to s3:3 needs both links.
func series() model.NetworkGraph {
	return model.NetworkGraph{
		Switches: []model.Switch{
			singleTable("s1", []uint32{1, 3}, forward(3, 1)),
			singleTable("s2", []uint32{1, 2}, forward(1, 2)),
			singleTable("s3", []uint32{1, 3}, forward(1, 3)),
		},
		Links: []model.Link{link("s1", 1, "s2", 1), link("s2", 2, "s3", 1)},
	}
}

// loopback sends s1:1 traffic through out_to_in; the re-entered copy tries to
// loop again and also outputs to port 2.
func loopback() model.NetworkGraph {
	outToIn := model.PortNumber{Kind: model.OutToInPort}
	loop := model.FlowRule{
		Priority: 2,
		Match:    map[string]string{"in_port": "1"},
		Actions:  []model.Action{{Type: model.ActionOutput, Port: outToIn}},
	}
	reentered := model.FlowRule{
		Priority: 1,
		Match:    map[string]string{"in_port": outToIn.String()},
		Actions:  []model.Action{{Type: model.ActionOutput, Port: outToIn}, output(2)},
	}
	return model.NetworkGraph{Switches: []model.Switch{singleTable("s1", []uint32{1, 2}, loop, reentered)}}
}

// hairpin forwards s1:3 to s2, which sends everything back out of the port
// it arrived on.
func hairpin() model.NetworkGraph {
	back := model.FlowRule{
		Priority: 10,
		Match:    map[string]string{"in_port": "1"},
		Actions:  []model.Action{{Type: model.ActionOutput, Port: model.PortNumber{Kind: model.InPortPort}}},
	}
	return model.NetworkGraph{
		Switches: []model.Switch{
			singleTable("s1", []uint32{1, 3}, forward(3, 1)),
			singleTable("s2", []uint32{1}, back),
		},
		Links: []model.Link{link("s1", 1, "s2", 1)},
	}
}

// punt sends everything entering s1 to the controller.
func punt() model.NetworkGraph {
	toController := model.FlowRule{
		Priority: 1,
		Actions:  []model.Action{{Type: model.ActionOutput, Port: model.PortNumber{Kind: model.ControllerPort}}},
	}
	return model.NetworkGraph{Switches: []model.Switch{singleTable("s1", []uint32{1}, toController)}}
}
