// Package maxflow implements a single source/sink maximum-flow solver
// over a directed graph with floating point capacities. The minimum cut
// is read back as source-side reachability in the residual graph.
package maxflow

// Graph is a flow network with n regular nodes plus an implicit source
// and sink terminal. Nodes are addressed 0..n-1.
type Graph struct {
	arcs   []arc
	adj    [][]int32
	src    int32
	snk    int32
	level  []int32
	iter   []int
	reach  []bool
	solved bool
}

type arc struct {
	to  int32
	cap float64
}

// New returns a graph with n regular nodes and zero-capacity terminals.
func New(n int) *Graph {
	if n < 0 {
		panic("maxflow: negative node count")
	}
	return &Graph{
		adj: make([][]int32, n+2),
		src: int32(n),
		snk: int32(n + 1),
	}
}

// NumNodes returns the number of regular (non-terminal) nodes.
func (g *Graph) NumNodes() int { return len(g.adj) - 2 }

func (g *Graph) checkNode(v int) {
	if v < 0 || v >= g.NumNodes() {
		panic("maxflow: node index out of range")
	}
}

// AddEdge adds a pair of directed residual arcs between u and v with
// independent forward and reverse capacities. Capacities accumulate if
// called repeatedly for the same pair only in the sense of adding
// parallel arcs, which is equivalent for max-flow purposes.
func (g *Graph) AddEdge(u, v int, capUV, capVU float64) {
	g.checkNode(u)
	g.checkNode(v)
	if capUV < 0 || capVU < 0 {
		panic("maxflow: negative capacity")
	}
	g.addArc(int32(u), int32(v), capUV, capVU)
}

// AddTerminal connects node v to the source with capacity srcCap and to
// the sink with capacity snkCap. Repeated calls add parallel arcs.
func (g *Graph) AddTerminal(v int, srcCap, snkCap float64) {
	g.checkNode(v)
	if srcCap < 0 || snkCap < 0 {
		panic("maxflow: negative capacity")
	}
	if srcCap > 0 {
		g.addArc(g.src, int32(v), srcCap, 0)
	}
	if snkCap > 0 {
		g.addArc(int32(v), g.snk, snkCap, 0)
	}
}

func (g *Graph) addArc(u, v int32, c, rc float64) {
	i := int32(len(g.arcs))
	g.arcs = append(g.arcs, arc{to: v, cap: c}, arc{to: u, cap: rc})
	g.adj[u] = append(g.adj[u], i)
	g.adj[v] = append(g.adj[v], i+1)
}

// Solve computes the maximum flow from source to sink using Dinic's
// algorithm and returns its value. After Solve, SourceSide reports the
// cut. A graph with no augmenting path at all yields zero flow and an
// everything-on-one-side cut, which is a valid degenerate result.
func (g *Graph) Solve() float64 {
	var flow float64
	g.level = make([]int32, len(g.adj))
	g.iter = make([]int, len(g.adj))
	for g.bfsLevels() {
		for i := range g.iter {
			g.iter[i] = 0
		}
		for {
			f := g.blockingFlow(g.src, inf)
			if f <= 0 {
				break
			}
			flow += f
		}
	}
	g.computeReach()
	g.solved = true
	return flow
}

// SourceSide reports whether node v lies on the source side of the
// minimum cut. It panics if called before Solve. Nodes with zero net
// capacity that no residual path reaches fall on the sink side: this is
// the deterministic tie-break for cuts of equal value.
func (g *Graph) SourceSide(v int) bool {
	if !g.solved {
		panic("maxflow: SourceSide called before Solve")
	}
	g.checkNode(v)
	return g.reach[v]
}

const inf = 1e300

func (g *Graph) bfsLevels() bool {
	for i := range g.level {
		g.level[i] = -1
	}
	g.level[g.src] = 0
	queue := []int32{g.src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, ai := range g.adj[u] {
			a := &g.arcs[ai]
			if a.cap > 0 && g.level[a.to] < 0 {
				g.level[a.to] = g.level[u] + 1
				queue = append(queue, a.to)
			}
		}
	}
	return g.level[g.snk] >= 0
}

func (g *Graph) blockingFlow(u int32, f float64) float64 {
	if u == g.snk {
		return f
	}
	for ; g.iter[u] < len(g.adj[u]); g.iter[u]++ {
		ai := g.adj[u][g.iter[u]]
		a := &g.arcs[ai]
		if a.cap <= 0 || g.level[a.to] != g.level[u]+1 {
			continue
		}
		d := g.blockingFlow(a.to, min(f, a.cap))
		if d > 0 {
			a.cap -= d
			g.arcs[ai^1].cap += d
			return d
		}
	}
	return 0
}

func (g *Graph) computeReach() {
	g.reach = make([]bool, len(g.adj))
	g.reach[g.src] = true
	queue := []int32{g.src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, ai := range g.adj[u] {
			a := &g.arcs[ai]
			if a.cap > 0 && !g.reach[a.to] {
				g.reach[a.to] = true
				queue = append(queue, a.to)
			}
		}
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
