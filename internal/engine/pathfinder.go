package engine

import (
	"context"
	"strings"

	"golang.org/x/exp/slices"

	"flow-validator/internal/graph"
	"flow-validator/internal/headerspace"
	"flow-validator/internal/model"
	"flow-validator/internal/rule"
)

// ctxCheckInterval is how many vertex visits pass between context checks.
const ctxCheckInterval = 256

// PathFinder enumerates header-space compliant paths over a shared, read-only
// analysis graph. It holds no mutable state; every search allocates its own.
type PathFinder struct {
	g *graph.Graph
}

func NewPathFinder(g *graph.Graph) *PathFinder {
	return &PathFinder{g: g}
}

func (f *PathFinder) Graph() *graph.Graph { return f.g }

// FindPaths returns every simple path along which packets from src admitted by
// match can leave dst, using only links the lambda permits. Paths are sorted;
// an empty result means no compliant path exists.
func (f *PathFinder) FindPaths(ctx context.Context, src, dst model.Port, match headerspace.Match, lambda model.Lambda) ([]model.Path, error) {
	s, err := f.newSearch(ctx, src, dst, lambda.Links, nil)
	if err != nil {
		return nil, err
	}
	s.run(src, match)
	if s.err != nil {
		return nil, s.err
	}
	slices.SortFunc(s.paths, func(a, b model.Path) int { return strings.Compare(pathKey(a), pathKey(b)) })
	return s.paths, nil
}

// Connected reports whether any path from src to dst survives with the failed
// links removed. Links are keyed by model.Link.Key.
func (f *PathFinder) Connected(ctx context.Context, src, dst model.Port, match headerspace.Match, failed map[string]bool) (bool, error) {
	s, err := f.newSearch(ctx, src, dst, nil, failed)
	if err != nil {
		return false, err
	}
	s.firstOnly = true
	s.run(src, match)
	if s.err != nil {
		return false, s.err
	}
	return len(s.paths) > 0, nil
}

func (f *PathFinder) newSearch(ctx context.Context, src, dst model.Port, allowedLinks []model.Link, failed map[string]bool) (*search, error) {
	if !f.g.HasPort(src) {
		return nil, model.Configf("unknown source port %s", src)
	}
	if !f.g.HasPort(dst) {
		return nil, model.Configf("unknown destination port %s", dst)
	}
	s := &search{
		ctx:     ctx,
		g:       f.g,
		dst:     dst,
		failed:  failed,
		visited: make([]bool, f.g.NodeCount()),
		seen:    make(map[string]bool),
	}
	if len(allowedLinks) > 0 {
		s.allowed = make(map[string]bool, len(allowedLinks))
		for _, l := range allowedLinks {
			s.allowed[l.Key()] = true
		}
	}
	return s, nil
}

// search is the per-invocation DFS state: colouring, the current path and
// the collected results.
type search struct {
	ctx       context.Context
	g         *graph.Graph
	dst       model.Port
	allowed   map[string]bool
	failed    map[string]bool
	firstOnly bool

	// visited marks vertices on the current path. Loopback through out_to_in
	// lands on separate re-entry vertices, so no vertex is ever revisited.
	visited []bool
	nodes   []graph.VertexID
	links   []model.Link
	paths   []model.Path
	seen    map[string]bool
	steps   int
	err     error
}

func (s *search) run(src model.Port, match headerspace.Match) {
	if src == s.dst || match.IsEmpty() {
		return
	}
	start, ok := s.g.IngressVertex(src.SwitchID)
	if !ok {
		return
	}
	s.visit(start, src.Number, match)
}

func (s *search) done() bool {
	if s.err != nil || (s.firstOnly && len(s.paths) > 0) {
		return true
	}
	s.steps++
	if s.steps%ctxCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return true
		}
	}
	return false
}

func (s *search) visit(v graph.VertexID, inPort model.PortNumber, match headerspace.Match) {
	if s.done() {
		return
	}
	s.visited[v] = true
	s.nodes = append(s.nodes, v)
	defer func() {
		s.nodes = s.nodes[:len(s.nodes)-1]
		s.visited[v] = false
	}()

	node := s.g.Node(v)
	switch node.Kind {
	case graph.ControllerNode:
		return
	case graph.OutToInNode:
		for _, e := range s.g.Out(v) {
			if !s.visited[e.To] {
				s.visit(e.To, e.Egress, match)
			}
		}
		return
	}

	for _, eg := range node.Table.Transition(inPort, match) {
		if s.done() {
			return
		}
		if eg.Match.IsEmpty() {
			continue
		}
		if eg.Kind == rule.EgressPort && (model.Port{SwitchID: node.SwitchID, Number: eg.Port}) == s.dst {
			s.record()
			continue
		}
		edge, ok := s.g.Follow(v, eg)
		if !ok || s.visited[edge.To] {
			continue
		}
		switch edge.Kind {
		case graph.RuleEdge:
			s.visit(edge.To, inPort, eg.Match)
		case graph.VirtualEdge:
			s.visit(edge.To, eg.Port, eg.Match)
		case graph.LinkEdge:
			key := edge.Link.Key()
			if s.failed[key] || (s.allowed != nil && !s.allowed[key]) {
				continue
			}
			out := model.Port{SwitchID: node.SwitchID, Number: eg.Port}
			s.links = append(s.links, edge.Link)
			s.visit(edge.To, edge.Link.Peer(out).Number, eg.Match)
			s.links = s.links[:len(s.links)-1]
		}
	}
}

func (s *search) record() {
	p := model.Path{Nodes: make([]string, len(s.nodes))}
	for i, v := range s.nodes {
		p.Nodes[i] = s.g.Node(v).ID
	}
	if len(s.links) > 0 {
		p.Links = slices.Clone(s.links)
	}
	key := pathKey(p)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.paths = append(s.paths, p)
}

func pathKey(p model.Path) string {
	var b strings.Builder
	b.WriteString(strings.Join(p.Nodes, ">"))
	for _, l := range p.Links {
		b.WriteString("|")
		b.WriteString(l.Key())
	}
	return b.String()
}
