package graph

import (
	"fmt"

	"golang.org/x/exp/slices"

	"flow-validator/internal/model"
	"flow-validator/internal/rule"
)

// Build constructs the analysis graph in two passes: per-switch vertices and
// intra-switch edges first, then link edges once every port is known. Any
// error aborts the build; no partial graph is returned.
func Build(ng model.NetworkGraph) (*Graph, error) {
	g := &Graph{
		vertexByID: make(map[string]VertexID),
		switches:   make(map[string]*switchInfo),
		linkAt:     make(map[model.Port]model.Link),
		linkByKey:  make(map[string]model.Link),
	}

	for _, sw := range ng.Switches {
		if err := g.addSwitch(sw); err != nil {
			return nil, err
		}
	}
	for _, sw := range ng.Switches {
		if err := g.addSwitchEdges(sw.ID); err != nil {
			return nil, err
		}
	}
	for _, l := range ng.Links {
		if err := g.addLink(l); err != nil {
			return nil, err
		}
	}
	for _, id := range g.switchIDs {
		g.addLinkEdges(id)
	}

	if err := g.verify(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) addNode(n Node) (VertexID, error) {
	if _, dup := g.vertexByID[n.ID]; dup {
		return 0, model.Configf("duplicate node identifier %q", n.ID)
	}
	v := VertexID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	g.vertexByID[n.ID] = v
	return v, nil
}

func (g *Graph) addEdge(from VertexID, e Edge) {
	for _, existing := range g.out[from] {
		if existing.Kind == e.Kind && existing.To == e.To && existing.Egress == e.Egress && existing.Table == e.Table {
			return
		}
	}
	g.out[from] = append(g.out[from], e)
	g.edges++
}

func (g *Graph) addSwitch(sw model.Switch) error {
	if sw.ID == "" {
		return model.Configf("switch with empty id")
	}
	if _, dup := g.switches[sw.ID]; dup {
		return model.Configf("duplicate switch %q", sw.ID)
	}

	info := &switchInfo{
		ports:  make(map[uint32]bool, len(sw.Ports)),
		tables: make(map[int]VertexID, len(sw.FlowTables)),
	}
	for _, p := range sw.Ports {
		if p == 0 {
			return model.Configf("switch %s: port number 0 is reserved", sw.ID)
		}
		if info.ports[p] {
			return model.Configf("switch %s: duplicate port %d", sw.ID, p)
		}
		info.ports[p] = true
		info.portList = append(info.portList, p)
	}

	tables := slices.Clone(sw.FlowTables)
	slices.SortStableFunc(tables, func(a, b model.FlowTable) int { return a.ID - b.ID })
	compiled := make([]*rule.FlowTable, 0, len(tables))
	for i, ft := range tables {
		table, err := rule.NewFlowTable(ft)
		if err != nil {
			return fmt.Errorf("switch %s: %w", sw.ID, err)
		}
		compiled = append(compiled, table)
		v, err := g.addNode(Node{ID: TableNodeID(sw.ID, ft.ID), SwitchID: sw.ID, Kind: TableNode, Table: table})
		if err != nil {
			return fmt.Errorf("switch %s: %w", sw.ID, err)
		}
		info.tables[ft.ID] = v
		info.order = append(info.order, v)
		if i == 0 {
			info.ingress, info.hasIngress = v, true
		}
	}

	if loopsBack(compiled) {
		info.reentry = make(map[int]VertexID, len(compiled))
		for _, table := range compiled {
			v, err := g.addNode(Node{ID: ReentryNodeID(sw.ID, table.ID), SwitchID: sw.ID, Kind: TableNode, Table: table, Reentry: true})
			if err != nil {
				return fmt.Errorf("switch %s: %w", sw.ID, err)
			}
			info.reentry[table.ID] = v
			info.reentryOrd = append(info.reentryOrd, v)
		}
	}

	var err error
	if info.controller, err = g.addNode(Node{ID: ControllerNodeID(sw.ID), SwitchID: sw.ID, Kind: ControllerNode}); err != nil {
		return err
	}
	if info.outToIn, err = g.addNode(Node{ID: OutToInNodeID(sw.ID), SwitchID: sw.ID, Kind: OutToInNode}); err != nil {
		return err
	}

	g.switches[sw.ID] = info
	g.switchIDs = append(g.switchIDs, sw.ID)
	return nil
}

// loopsBack reports whether any rule outputs to out_to_in.
func loopsBack(tables []*rule.FlowTable) bool {
	for _, t := range tables {
		for _, r := range t.Rules() {
			for _, e := range r.Effects {
				if e.Kind == rule.EffectOutput && e.Port.Kind == model.OutToInPort {
					return true
				}
			}
		}
	}
	return false
}

func (g *Graph) addSwitchEdges(switchID string) error {
	info := g.switches[switchID]
	if len(info.reentryOrd) > 0 {
		g.addEdge(info.outToIn, Edge{To: info.reentryOrd[0], Kind: VirtualEdge, Egress: model.PortNumber{Kind: model.OutToInPort}})
	}
	if err := g.addPipelineEdges(info, switchID, info.order, info.tables); err != nil {
		return err
	}
	return g.addPipelineEdges(info, switchID, info.reentryOrd, info.reentry)
}

// addPipelineEdges adds goto-table and virtual-port edges within one copy of
// a switch's tables, and checks that every output names a port the switch
// declares. Re-entry copies get no out_to_in edge: a packet loops back once.
func (g *Graph) addPipelineEdges(info *switchInfo, switchID string, order []VertexID, tables map[int]VertexID) error {
	for _, v := range order {
		node := g.nodes[v]
		for _, r := range node.Table.Rules() {
			for _, e := range r.Effects {
				switch e.Kind {
				case rule.EffectGotoTable:
					target, ok := tables[e.Table]
					if !ok {
						return model.Configf("switch %s table %d: goto unknown table %d", switchID, node.Table.ID, e.Table)
					}
					g.addEdge(v, Edge{To: target, Kind: RuleEdge, Table: e.Table})
				case rule.EffectOutput:
					switch e.Port.Kind {
					case model.ControllerPort:
						g.addEdge(v, Edge{To: info.controller, Kind: VirtualEdge, Egress: e.Port})
					case model.OutToInPort:
						if !node.Reentry {
							g.addEdge(v, Edge{To: info.outToIn, Kind: VirtualEdge, Egress: e.Port})
						}
					case model.InPortPort:
						// resolved per packet; see addLinkEdges
					default:
						if !info.ports[e.Port.Value] {
							return model.Configf("switch %s table %d: output to undeclared port %d", switchID, node.Table.ID, e.Port.Value)
						}
					}
				}
			}
		}
	}
	return nil
}

func (g *Graph) addLink(l model.Link) error {
	for _, p := range []model.Port{l.Src, l.Dst} {
		if !p.Number.IsPhysical() {
			return model.Configf("link %s: endpoint %s is not a physical port", l, p)
		}
		if !g.HasPort(p) {
			return model.Configf("link %s references unknown port %s", l, p)
		}
		if existing, dup := g.linkAt[p]; dup {
			return model.Configf("port %s is used by links %s and %s", p, existing, l)
		}
	}
	if l.Src == l.Dst {
		return model.Configf("link %s connects a port to itself", l)
	}
	g.linkAt[l.Src] = l
	g.linkAt[l.Dst] = l
	g.linkByKey[l.Key()] = l
	g.links = append(g.links, l)
	return nil
}

func (g *Graph) addLinkEdges(switchID string) {
	info := g.switches[switchID]
	for _, order := range [][]VertexID{info.order, info.reentryOrd} {
		for _, v := range order {
			for _, r := range g.nodes[v].Table.Rules() {
				for _, e := range r.Effects {
					if e.Kind != rule.EffectOutput {
						continue
					}
					switch {
					case e.Port.IsPhysical():
						g.addLinkEdge(v, switchID, e.Port)
					case e.Port.Kind == model.InPortPort:
						// The packet may have arrived on any linked port.
						for _, p := range info.portList {
							g.addLinkEdge(v, switchID, model.PhysicalNumber(p))
						}
					}
				}
			}
		}
	}
}

func (g *Graph) addLinkEdge(v VertexID, switchID string, port model.PortNumber) {
	out := model.Port{SwitchID: switchID, Number: port}
	l, ok := g.linkAt[out]
	if !ok {
		return
	}
	peer, ok := g.IngressVertex(l.Peer(out).SwitchID)
	if !ok {
		return
	}
	g.addEdge(v, Edge{To: peer, Kind: LinkEdge, Egress: port, Link: l})
}

// verify checks that node ids and vertices map one-to-one.
func (g *Graph) verify() error {
	if len(g.vertexByID) != len(g.nodes) {
		return model.InvariantError{Detail: fmt.Sprintf("%d node ids for %d vertices", len(g.vertexByID), len(g.nodes))}
	}
	for id, v := range g.vertexByID {
		if int(v) < 0 || int(v) >= len(g.nodes) || g.nodes[v].ID != id {
			return model.InvariantError{Detail: fmt.Sprintf("node id %q does not resolve back to itself", id)}
		}
	}
	return nil
}
