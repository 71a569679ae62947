// Package traverse runs iterative depth-first and breadth-first walks over
// any graph.Layer.
package traverse

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"wikigraph/graph"
)

// Direction selects which neighbors a walk follows.
type Direction int

const (
	Forward       Direction = iota // children, or outgoing edge targets
	Backward                       // parent, or incoming edge sources
	Bidirectional                  // forward neighbors first, then backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Bidirectional:
		return "bidirectional"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts forward, backward and bidirectional (or both).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "fwd":
		return Forward, nil
	case "backward", "back":
		return Backward, nil
	case "bidirectional", "both":
		return Bidirectional, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Unbounded disables the depth limit.
const Unbounded = -1

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine walks one layer. Every walk keeps a visited set, so cyclic
// graphs terminate and each node is reported at most once.
type Engine struct {
	layer  graph.Layer
	logger *slog.Logger
}

// New creates an engine over layer.
func New(layer graph.Layer, opts ...Option) *Engine {
	e := &Engine{layer: layer, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "traverse"))
	return e
}

// Layer returns the layer the engine walks.
func (e *Engine) Layer() graph.Layer { return e.layer }

// Visitor is called once per reached node with its distance from the
// nearest start. Returning false stops the walk.
type Visitor func(n *graph.Node, depth int) bool

type item struct {
	node  *graph.Node
	depth int
}

// walk is the shared driver. A negative maxDepth means unbounded; nodes
// at maxDepth are reported but not expanded.
func (e *Engine) walk(starts []*graph.Node, dir Direction, maxDepth int, bfs bool, visit Visitor) bool {
	visited := make(map[string]bool)
	work := make([]item, 0, len(starts))

	if bfs {
		for _, s := range starts {
			if s != nil {
				work = append(work, item{s, 0})
			}
		}
	} else {
		for i := len(starts) - 1; i >= 0; i-- {
			if starts[i] != nil {
				work = append(work, item{starts[i], 0})
			}
		}
	}

	steps := 0
	for len(work) > 0 {
		var cur item
		if bfs {
			cur, work = work[0], work[1:]
		} else {
			cur, work = work[len(work)-1], work[:len(work)-1]
		}
		if visited[cur.node.ID] {
			continue
		}
		visited[cur.node.ID] = true
		steps++

		if !visit(cur.node, cur.depth) {
			e.logger.Debug("walk stopped by visitor", slog.Int("visited", steps))
			return false
		}
		if maxDepth >= 0 && cur.depth >= maxDepth {
			continue
		}

		next := e.neighbors(cur.node.ID, dir)
		if bfs {
			for _, n := range next {
				if !visited[n.ID] {
					work = append(work, item{n, cur.depth + 1})
				}
			}
		} else {
			for i := len(next) - 1; i >= 0; i-- {
				if !visited[next[i].ID] {
					work = append(work, item{next[i], cur.depth + 1})
				}
			}
		}
	}

	e.logger.Debug("walk finished", slog.Int("visited", steps), slog.Bool("bfs", bfs))
	return true
}

func (e *Engine) neighbors(id string, dir Direction) []*graph.Node {
	switch dir {
	case Forward:
		return e.layer.ForwardNeighbors(id)
	case Backward:
		return e.layer.BackwardNeighbors(id)
	default:
		fwd := e.layer.ForwardNeighbors(id)
		back := e.layer.BackwardNeighbors(id)
		out := make([]*graph.Node, 0, len(fwd)+len(back))
		out = append(out, fwd...)
		return append(out, back...)
	}
}

// DFSCollect returns the nodes reached depth-first that satisfy pred, in
// first-visit order. A nil pred accepts every node.
func (e *Engine) DFSCollect(starts []*graph.Node, dir Direction, maxDepth int, pred func(*graph.Node) bool) []*graph.Node {
	return e.collect(starts, dir, maxDepth, false, pred)
}

// BFSCollect is DFSCollect in breadth-first order.
func (e *Engine) BFSCollect(starts []*graph.Node, dir Direction, maxDepth int, pred func(*graph.Node) bool) []*graph.Node {
	return e.collect(starts, dir, maxDepth, true, pred)
}

func (e *Engine) collect(starts []*graph.Node, dir Direction, maxDepth int, bfs bool, pred func(*graph.Node) bool) []*graph.Node {
	var out []*graph.Node
	e.walk(starts, dir, maxDepth, bfs, func(n *graph.Node, _ int) bool {
		if pred == nil || pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// DFSVisit walks depth-first, calling visit per node. It reports false if
// the visitor stopped the walk early.
func (e *Engine) DFSVisit(starts []*graph.Node, dir Direction, maxDepth int, visit Visitor) bool {
	return e.walk(starts, dir, maxDepth, false, visit)
}

// BFSVisit is DFSVisit in breadth-first order.
func (e *Engine) BFSVisit(starts []*graph.Node, dir Direction, maxDepth int, visit Visitor) bool {
	return e.walk(starts, dir, maxDepth, true, visit)
}

// DFSTransform maps every node reached depth-first through fn and keeps
// the results fn marks present, in visit order.
func DFSTransform[T any](e *Engine, starts []*graph.Node, dir Direction, maxDepth int, fn func(*graph.Node) (T, bool)) []T {
	return transform(e, starts, dir, maxDepth, false, fn)
}

// BFSTransform is DFSTransform in breadth-first order.
func BFSTransform[T any](e *Engine, starts []*graph.Node, dir Direction, maxDepth int, fn func(*graph.Node) (T, bool)) []T {
	return transform(e, starts, dir, maxDepth, true, fn)
}

func transform[T any](e *Engine, starts []*graph.Node, dir Direction, maxDepth int, bfs bool, fn func(*graph.Node) (T, bool)) []T {
	var out []T
	e.walk(starts, dir, maxDepth, bfs, func(n *graph.Node, _ int) bool {
		if v, ok := fn(n); ok {
			out = append(out, v)
		}
		return true
	})
	return out
}

// Path is a chain of nodes from a start to a goal.
type Path struct {
	Nodes []*graph.Node
}

// Len returns the number of hops.
func (p Path) Len() int {
	if len(p.Nodes) == 0 {
		return 0
	}
	return len(p.Nodes) - 1
}

func (p Path) String() string {
	parts := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		parts[i] = n.ID
	}
	return strings.Join(parts, " -> ")
}

// ShortestPath finds a minimum-hop path from one node to another
// following dir. It reports false if to is unreachable.
func (e *Engine) ShortestPath(from, to string, dir Direction) (Path, bool) {
	start, ok := e.layer.Node(from)
	if !ok {
		return Path{}, false
	}
	if _, ok := e.layer.Node(to); !ok {
		return Path{}, false
	}

	prev := map[string]*graph.Node{from: nil}
	queue := []*graph.Node{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.ID == to {
			var nodes []*graph.Node
			for n := cur; n != nil; n = prev[n.ID] {
				nodes = append(nodes, n)
			}
			for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
				nodes[i], nodes[j] = nodes[j], nodes[i]
			}
			return Path{Nodes: nodes}, true
		}
		for _, n := range e.neighbors(cur.ID, dir) {
			if _, seen := prev[n.ID]; !seen {
				prev[n.ID] = cur
				queue = append(queue, n)
			}
		}
	}
	return Path{}, false
}
