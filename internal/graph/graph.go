// Package graph builds the analysis graph: one vertex per switch flow table
// plus a controller and an out-to-in vertex per switch, joined by intra-switch
// rule edges and inter-switch link edges. A switch whose rules output to
// out_to_in also gets a second copy of its tables, entered only from the
// out-to-in vertex, so a looped-back packet never revisits a vertex. A Graph
// is immutable once Build returns and may be shared by any number of
// concurrent readers.
package graph

import (
	"fmt"

	"flow-validator/internal/model"
	"flow-validator/internal/rule"
)

type VertexID int

type NodeKind int

const (
	TableNode NodeKind = iota
	ControllerNode
	OutToInNode
)

func (k NodeKind) String() string {
	switch k {
	case ControllerNode:
		return "controller"
	case OutToInNode:
		return "out_to_in"
	default:
		return "table"
	}
}

type Node struct {
	ID       string
	SwitchID string
	Kind     NodeKind
	// Table is set for TableNode vertices only.
	Table *rule.FlowTable
	// Reentry marks the table copies reached through out_to_in.
	Reentry bool
}

type EdgeKind int

const (
	// RuleEdge chains one flow table to a later one in the same switch.
	RuleEdge EdgeKind = iota
	// LinkEdge crosses a physical link into the peer switch's ingress table.
	LinkEdge
	// VirtualEdge enters or leaves a controller/out-to-in vertex.
	VirtualEdge
)

type Edge struct {
	To   VertexID
	Kind EdgeKind
	// Egress is the output port that fires this edge (LinkEdge, VirtualEdge from a table).
	Egress model.PortNumber
	// Table is the goto target (RuleEdge).
	Table int
	// Link is the traversed physical link (LinkEdge).
	Link model.Link
}

type switchInfo struct {
	ports      map[uint32]bool
	portList   []uint32
	tables     map[int]VertexID
	order      []VertexID
	reentry    map[int]VertexID
	reentryOrd []VertexID
	ingress    VertexID
	hasIngress bool
	controller VertexID
	outToIn    VertexID
}

type Graph struct {
	nodes      []Node
	out        [][]Edge
	vertexByID map[string]VertexID
	switches   map[string]*switchInfo
	switchIDs  []string
	linkAt     map[model.Port]model.Link
	links      []model.Link
	linkByKey  map[string]model.Link
	edges      int
}

func TableNodeID(switchID string, table int) string {
	return fmt.Sprintf("%s:table%d", switchID, table)
}

func ReentryNodeID(switchID string, table int) string {
	return fmt.Sprintf("%s:reentry:table%d", switchID, table)
}

func ControllerNodeID(switchID string) string { return switchID + ":controller" }

func OutToInNodeID(switchID string) string { return switchID + ":out_to_in" }

func (g *Graph) NodeCount() int { return len(g.nodes) }

func (g *Graph) EdgeCount() int { return g.edges }

// Switches returns switch ids in declaration order.
func (g *Graph) Switches() []string { return g.switchIDs }

func (g *Graph) Node(v VertexID) Node { return g.nodes[v] }

// Vertex resolves a node identifier.
func (g *Graph) Vertex(id string) (VertexID, bool) {
	v, ok := g.vertexByID[id]
	return v, ok
}

// Out returns the outgoing edges of v. Callers must not modify the slice.
func (g *Graph) Out(v VertexID) []Edge { return g.out[v] }

// IngressVertex returns the vertex where packets entering a switch start,
// its lowest-numbered flow table.
func (g *Graph) IngressVertex(switchID string) (VertexID, bool) {
	sw, ok := g.switches[switchID]
	if !ok || !sw.hasIngress {
		return 0, false
	}
	return sw.ingress, true
}

// HasPort reports whether p names a declared physical port or the controller
// or out-to-in port of a known switch.
func (g *Graph) HasPort(p model.Port) bool {
	sw, ok := g.switches[p.SwitchID]
	if !ok {
		return false
	}
	switch p.Number.Kind {
	case model.PhysicalPort:
		return sw.ports[p.Number.Value]
	case model.InPortPort:
		return false
	}
	return true
}

// LinkAt returns the physical link attached to p.
func (g *Graph) LinkAt(p model.Port) (model.Link, bool) {
	l, ok := g.linkAt[p]
	return l, ok
}

// Links returns every physical link in declaration order.
func (g *Graph) Links() []model.Link { return g.links }

// ResolveLink finds the topology link with the same endpoints as l, in
// either direction.
func (g *Graph) ResolveLink(l model.Link) (model.Link, bool) {
	found, ok := g.linkByKey[l.Key()]
	return found, ok
}

// Follow returns the edge out of v that an egress fires, if any.
func (g *Graph) Follow(v VertexID, e rule.Egress) (Edge, bool) {
	for _, edge := range g.out[v] {
		switch {
		case e.Kind == rule.EgressTable && edge.Kind == RuleEdge && edge.Table == e.Table:
			return edge, true
		case e.Kind == rule.EgressPort && edge.Kind != RuleEdge && edge.Egress == e.Port:
			return edge, true
		}
	}
	return Edge{}, false
}
