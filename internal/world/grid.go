package world

import (
	"math"

	"go.uber.org/zap"

	"github.com/worldsim/server/internal/geom"
)

const (
	// DefaultCellSize is the edge length of a grid cell in world units,
	// sized so a typical entity box covers one to eight cells.
	DefaultCellSize = 64.0
	// DefaultFootprintWarnCells is the per-box cell count above which an
	// insert is logged and counted as an overflow. The insert still
	// proceeds in full.
	DefaultFootprintWarnCells = 1024
)

type cellKey struct {
	cx, cy, cz int32
}

// GridStats is an occupancy snapshot used for cell-size tuning.
type GridStats struct {
	TotalCells int // cells allocated since the last Clear, cumulative
	UsedCells  int // cells currently holding at least one entity
	MaxPerCell int // largest current cell population
	Overflows  int // inserts whose footprint exceeded the warn threshold
}

// Grid is a sparse spatial hash over cubic cells. Cells exist only while
// occupied. The grid stores ids, not boxes: callers must remove with the
// same box they inserted with. Single simulation goroutine, no locks.
type Grid struct {
	cellSize    float64
	invCellSize float64
	warnCells   int
	cells       map[cellKey]map[EntityID]struct{}
	reg         *Registry
	log         *zap.Logger

	overflows int
	allocated int
}

// NewGrid builds a grid over the given registry. cellSize <= 0 and
// warnCells <= 0 fall back to the defaults.
func NewGrid(cellSize float64, warnCells int, reg *Registry, log *zap.Logger) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	if warnCells <= 0 {
		warnCells = DefaultFootprintWarnCells
	}
	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		warnCells:   warnCells,
		cells:       make(map[cellKey]map[EntityID]struct{}),
		reg:         reg,
		log:         log,
	}
}

func (g *Grid) CellSize() float64 {
	return g.cellSize
}

// toCell maps a world coordinate to a cell coordinate. Floor keeps the
// mapping continuous across zero for negative coordinates.
func (g *Grid) toCell(v float64) int32 {
	return int32(math.Floor(v * g.invCellSize))
}

// cellRange returns the inclusive cell coordinate range covered by box.
func (g *Grid) cellRange(box geom.Box) (lo, hi [3]int32) {
	lo = [3]int32{g.toCell(box.Min.X), g.toCell(box.Min.Y), g.toCell(box.Min.Z)}
	hi = [3]int32{g.toCell(box.Max.X), g.toCell(box.Max.Y), g.toCell(box.Max.Z)}
	return lo, hi
}

// Insert adds id to every cell box overlaps. The caller guarantees id is not
// already present; the grid does not check.
func (g *Grid) Insert(id EntityID, box geom.Box) {
	if !box.Valid() {
		g.log.Warn("inverted box inserted into grid",
			zap.Int32("entity", id),
			zap.Float64("min_x", box.Min.X), zap.Float64("max_x", box.Max.X),
			zap.Float64("min_y", box.Min.Y), zap.Float64("max_y", box.Max.Y),
			zap.Float64("min_z", box.Min.Z), zap.Float64("max_z", box.Max.Z))
	}

	lo, hi := g.cellRange(box)
	footprint := int(hi[0]-lo[0]+1) * int(hi[1]-lo[1]+1) * int(hi[2]-lo[2]+1)
	if footprint > g.warnCells {
		g.overflows++
		g.log.Warn("oversized grid footprint",
			zap.Int32("entity", id),
			zap.Int("cells", footprint),
			zap.Int("warn_threshold", g.warnCells))
	}

	for cx := lo[0]; cx <= hi[0]; cx++ {
		for cy := lo[1]; cy <= hi[1]; cy++ {
			for cz := lo[2]; cz <= hi[2]; cz++ {
				key := cellKey{cx, cy, cz}
				cell := g.cells[key]
				if cell == nil {
					cell = make(map[EntityID]struct{}, 4)
					g.cells[key] = cell
					g.allocated++
				}
				cell[id] = struct{}{}
			}
		}
	}
}

// Remove deletes id from every cell box overlaps. box must be the box passed
// to the matching Insert. Emptied cells are released.
func (g *Grid) Remove(id EntityID, box geom.Box) {
	lo, hi := g.cellRange(box)
	for cx := lo[0]; cx <= hi[0]; cx++ {
		for cy := lo[1]; cy <= hi[1]; cy++ {
			for cz := lo[2]; cz <= hi[2]; cz++ {
				key := cellKey{cx, cy, cz}
				if cell, ok := g.cells[key]; ok {
					delete(cell, id)
					if len(cell) == 0 {
						delete(g.cells, key)
					}
				}
			}
		}
	}
}

// QueryRegion returns the ids of entities whose absolute box overlaps query.
// Order is unspecified; each id appears once.
func (g *Grid) QueryRegion(query geom.Box) []EntityID {
	return g.QueryRegionInto(query, nil)
}

// QueryRegionInto appends results to buf and returns it, reusing its backing
// array across ticks.
func (g *Grid) QueryRegionInto(query geom.Box, buf []EntityID) []EntityID {
	lo, hi := g.cellRange(query)
	multiCell := lo != hi

	// The dedupe set is only needed when the query spans several cells;
	// single-cell queries cannot see an id twice.
	var seen map[EntityID]struct{}
	if multiCell {
		seen = make(map[EntityID]struct{}, 16)
	}

	for cx := lo[0]; cx <= hi[0]; cx++ {
		for cy := lo[1]; cy <= hi[1]; cy++ {
			for cz := lo[2]; cz <= hi[2]; cz++ {
				cell, ok := g.cells[cellKey{cx, cy, cz}]
				if !ok {
					continue
				}
				for id := range cell {
					if multiCell {
						if _, dup := seen[id]; dup {
							continue
						}
						seen[id] = struct{}{}
					}
					e := g.reg.Lookup(id)
					if e == nil {
						continue
					}
					if e.Abs.Overlaps(query) {
						buf = append(buf, id)
					}
				}
			}
		}
	}
	return buf
}

// Clear drops every cell and resets the counters.
func (g *Grid) Clear() {
	clear(g.cells)
	g.overflows = 0
	g.allocated = 0
}

// Stats returns the current occupancy snapshot.
func (g *Grid) Stats() GridStats {
	maxPer := 0
	for _, cell := range g.cells {
		if len(cell) > maxPer {
			maxPer = len(cell)
		}
	}
	return GridStats{
		TotalCells: g.allocated,
		UsedCells:  len(g.cells),
		MaxPerCell: maxPer,
		Overflows:  g.overflows,
	}
}
