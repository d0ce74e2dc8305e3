package game

import (
	"time"

	"github.com/google/uuid"
)

type Ship struct {
	Size     int
	Hits     int
	Sunk     bool
	X        int
	Y        int
	Vertical bool
}

func (s Ship) covers(x, y int) bool {
	if s.Vertical {
		return x == s.X && y >= s.Y && y < s.Y+s.Size
	}
	return y == s.Y && x >= s.X && x < s.X+s.Size
}

type Stats struct {
	CellsHit       int
	CellsMissed    int
	ShipsSunk      int
	ProblemsSolved int
}

type Player struct {
	ID     uuid.UUID
	Handle string

	Grid        Grid
	Fleet       []Ship
	FleetPlaced bool

	Heat       int
	Locked     bool
	VetoesUsed int

	// Wall-clock timer state; nil means no timer active.
	VetoStartedAt *time.Time
	LastSolveAt   *time.Time

	Stats Stats
}

func NewPlayer(id uuid.UUID, handle string) *Player {
	return &Player{
		ID:     id,
		Handle: handle,
		Grid:   NewGrid(),
	}
}

// placeShip validates one ship against the grid and commits it. The caller
// owns atomicity across the whole fleet.
func (p *Player) placeShip(s Ship) error {
	if !InBounds(s.X, s.Y) {
		return ErrValidation
	}
	endX, endY := s.X, s.Y
	if s.Vertical {
		endY = s.Y + s.Size - 1
	} else {
		endX = s.X + s.Size - 1
	}
	if !InBounds(endX, endY) {
		return ErrValidation
	}
	for i := 0; i < s.Size; i++ {
		cx, cy := s.X, s.Y
		if s.Vertical {
			cy += i
		} else {
			cx += i
		}
		if p.Grid.Cells[cy][cx] != CellEmpty {
			return ErrValidation
		}
	}
	for i := 0; i < s.Size; i++ {
		cx, cy := s.X, s.Y
		if s.Vertical {
			cy += i
		} else {
			cx += i
		}
		p.Grid.Cells[cy][cx] = CellShip
	}
	s.Hits = 0
	s.Sunk = false
	p.Fleet = append(p.Fleet, s)
	return nil
}

// clearFleet drops any partial placement so a failed submission leaves the
// player with an empty board.
func (p *Player) clearFleet() {
	p.Fleet = nil
	p.Grid = NewGrid()
	p.FleetPlaced = false
}

// Unlock clears the weapons lock and resets heat, unconditionally.
func (p *Player) Unlock() {
	p.Locked = false
	p.Heat = 0
}

func (p *Player) SurvivingShips() int {
	n := 0
	for _, s := range p.Fleet {
		if !s.Sunk {
			n++
		}
	}
	return n
}

func (p *Player) FleetSunk() bool {
	return p.FleetPlaced && p.Grid.ShipCellsRemaining() == 0
}

// vetoPenalty returns the penalty duration for the player's active veto.
// The table is indexed by vetoes used before the active one started, clamped
// to the final entry.
func (p *Player) vetoPenalty(penalties [3]time.Duration) time.Duration {
	idx := p.VetoesUsed - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(penalties) {
		idx = len(penalties) - 1
	}
	return penalties[idx]
}

// VetoRemaining reports the time left on an active veto timer, or false when
// none is running.
func (p *Player) VetoRemaining(penalties [3]time.Duration) (time.Duration, bool) {
	if p.VetoStartedAt == nil {
		return 0, false
	}
	left := p.vetoPenalty(penalties) - now().Sub(*p.VetoStartedAt)
	if left <= 0 {
		return 0, false
	}
	return left, true
}
