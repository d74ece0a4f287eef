package hexgrid

import (
	"container/heap"
	"errors"
)

// DefaultSearchBudget caps the number of cells A* may expand per request.
const DefaultSearchBudget = 8192

// ErrNoPath is returned when no passable route connects two cells.
var ErrNoPath = errors.New("hexgrid: no path between cells")

// Terrain reports whether a road may be laid through a cell.
type Terrain interface {
	Passable(c Cell) bool
}

// TerrainFunc adapts a predicate into a Terrain.
type TerrainFunc func(c Cell) bool

func (f TerrainFunc) Passable(c Cell) bool {
	if f == nil {
		return true
	}
	return f(c)
}

// OpenTerrain treats every cell as passable.
type OpenTerrain struct{}

func (OpenTerrain) Passable(Cell) bool { return true }

// BlockedCells is a Terrain where the listed cells are impassable.
type BlockedCells map[Cell]struct{}

func (b BlockedCells) Passable(c Cell) bool {
	_, blocked := b[c]
	return !blocked
}

// RouteKind records which strategy produced a route.
type RouteKind string

const (
	RouteDirect   RouteKind = "direct"
	RouteNeighbor RouteKind = "neighbor"
	RouteIndirect RouteKind = "indirect"
	RoutePathfind RouteKind = "pathfind"
)

// Router computes cell paths for new roads.
type Router struct {
	Terrain Terrain
	Budget  int
}

// Route returns the cell path between start and goal, endpoints inclusive.
// Equal cells, direct neighbours and cells sharing a neighbour are resolved
// without searching; everything else falls back to A*.
func (r Router) Route(start, goal Cell) ([]Cell, RouteKind, error) {
	terrain := r.Terrain
	if terrain == nil {
		terrain = OpenTerrain{}
	}
	if start == goal {
		return []Cell{start}, RouteDirect, nil
	}
	if !terrain.Passable(goal) {
		return nil, "", ErrNoPath
	}
	if IsNeighbor(start, goal) {
		return []Cell{start, goal}, RouteNeighbor, nil
	}
	if mid, ok := SharedNeighbor(start, goal); ok && terrain.Passable(mid) {
		return []Cell{start, mid, goal}, RouteIndirect, nil
	}
	path, err := FindPath(start, goal, terrain, r.Budget)
	if err != nil {
		return nil, "", err
	}
	return path, RoutePathfind, nil
}

type pathNode struct {
	cell   Cell
	g      int
	f      int
	seq    int
	index  int
	parent *pathNode
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	if pq[i].g != pq[j].g {
		return pq[i].g > pq[j].g
	}
	return pq[i].seq < pq[j].seq
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pathNode)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// FindPath runs A* from start to goal over passable cells. The start cell is
// always accepted so roads can leave impassable building plots. A non-positive
// budget uses DefaultSearchBudget.
func FindPath(start, goal Cell, terrain Terrain, budget int) ([]Cell, error) {
	if terrain == nil {
		terrain = OpenTerrain{}
	}
	if budget <= 0 {
		budget = DefaultSearchBudget
	}
	if start == goal {
		return []Cell{start}, nil
	}
	if !terrain.Passable(goal) {
		return nil, ErrNoPath
	}

	open := &pathQueue{}
	heap.Init(open)
	seq := 0
	heap.Push(open, &pathNode{cell: start, f: Distance(start, goal)})
	gScore := map[Cell]int{start: 0}
	closed := make(map[Cell]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		if _, seen := closed[current.cell]; seen {
			continue
		}
		closed[current.cell] = struct{}{}
		if current.cell == goal {
			return reconstructPath(current), nil
		}
		if len(closed) >= budget {
			break
		}

		for _, next := range current.cell.Neighbors() {
			if _, seen := closed[next]; seen {
				continue
			}
			if !terrain.Passable(next) {
				continue
			}
			tentative := current.g + 1
			if prev, ok := gScore[next]; ok && tentative >= prev {
				continue
			}
			gScore[next] = tentative
			seq++
			heap.Push(open, &pathNode{
				cell:   next,
				g:      tentative,
				f:      tentative + Distance(next, goal),
				seq:    seq,
				parent: current,
			})
		}
	}
	return nil, ErrNoPath
}

func reconstructPath(end *pathNode) []Cell {
	path := make([]Cell, 0, end.g+1)
	for node := end; node != nil; node = node.parent {
		path = append(path, node.cell)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	return path
}
