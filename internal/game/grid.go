package game

// GridSize is the fixed board dimension. All coordinates are 0-indexed.
const GridSize = 10

type Cell string

const (
	CellEmpty Cell = "empty"
	CellShip  Cell = "ship"
	CellHit   Cell = "hit"
	CellMiss  Cell = "miss"
)

type ShotOutcome string

const (
	OutcomeHit    ShotOutcome = "hit"
	OutcomeMiss   ShotOutcome = "miss"
	OutcomeRepeat ShotOutcome = "repeat" // cell was already hit or missed
)

type Grid struct {
	Cells [GridSize][GridSize]Cell
}

func NewGrid() Grid {
	var g Grid
	for y := range g.Cells {
		for x := range g.Cells[y] {
			g.Cells[y][x] = CellEmpty
		}
	}
	return g
}

func InBounds(x, y int) bool {
	return x >= 0 && x < GridSize && y >= 0 && y < GridSize
}

// ReceiveShot resolves a shot against this grid. Callers must bounds-check
// first; coordinates are trusted here.
func (g *Grid) ReceiveShot(x, y int) ShotOutcome {
	switch g.Cells[y][x] {
	case CellEmpty:
		g.Cells[y][x] = CellMiss
		return OutcomeMiss
	case CellShip:
		g.Cells[y][x] = CellHit
		return OutcomeHit
	default:
		return OutcomeRepeat
	}
}

// ShipCellsRemaining counts un-hit ship cells, used for the all-sunk check.
func (g *Grid) ShipCellsRemaining() int {
	n := 0
	for y := range g.Cells {
		for x := range g.Cells[y] {
			if g.Cells[y][x] == CellShip {
				n++
			}
		}
	}
	return n
}

// Rows returns the grid fully revealed, for the owner's resync view.
func (g *Grid) Rows() [][]string {
	rows := make([][]string, GridSize)
	for y := range g.Cells {
		row := make([]string, GridSize)
		for x := range g.Cells[y] {
			row[x] = string(g.Cells[y][x])
		}
		rows[y] = row
	}
	return rows
}

// MaskedRows returns the grid as an opponent may see it: un-hit ship cells
// are reported as empty.
func (g *Grid) MaskedRows() [][]string {
	rows := make([][]string, GridSize)
	for y := range g.Cells {
		row := make([]string, GridSize)
		for x := range g.Cells[y] {
			c := g.Cells[y][x]
			if c == CellShip {
				c = CellEmpty
			}
			row[x] = string(c)
		}
		rows[y] = row
	}
	return rows
}
