// Package game holds the match state machine and the combat model. Nothing
// here is concurrency-safe on its own: a Game is only ever touched inside
// the registry's critical sections.
package game

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/battlecp/battlecp-backend/internal/fanout"
)

// now is swapped out in tests to drive timer expiry without sleeping.
var now = time.Now

type Phase string

const (
	PhaseWaiting     Phase = "Waiting"
	PhasePlacing     Phase = "PlacingShips"
	PhasePlaying     Phase = "Playing"
	PhaseSuddenDeath Phase = "SuddenDeath"
	PhaseFinished    Phase = "Finished"
)

// Cooldown between solve-check attempts per player.
const solveCooldown = 10 * time.Second

// Required fleet composition, descending.
var fleetSizes = []int{5, 4, 3, 3, 2}

type Game struct {
	ID      uuid.UUID
	Player1 *Player
	Player2 *Player // nil until a second player joins
	Phase   Phase
	Config  Config

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	// Events carries Tick and Broadcast frames to every attached socket.
	Events *fanout.Fanout
}

func New(hostID uuid.UUID, handle string, cfg Config) *Game {
	return &Game{
		ID:        uuid.New(),
		Player1:   NewPlayer(hostID, handle),
		Phase:     PhaseWaiting,
		Config:    cfg,
		CreatedAt: now(),
		Events:    fanout.New(),
	}
}

func (g *Game) PlayerByID(id uuid.UUID) (*Player, bool) {
	if g.Player1 != nil && g.Player1.ID == id {
		return g.Player1, true
	}
	if g.Player2 != nil && g.Player2.ID == id {
		return g.Player2, true
	}
	return nil, false
}

func (g *Game) Opponent(id uuid.UUID) *Player {
	if g.Player1 != nil && g.Player1.ID == id {
		return g.Player2
	}
	if g.Player2 != nil && g.Player2.ID == id {
		return g.Player1
	}
	return nil
}

// Join admits the second player and advances to ship placement. Handle
// verification happens before this is called, outside the registry lock.
func (g *Game) Join(id uuid.UUID, handle string) error {
	if g.Phase == PhaseFinished {
		return ErrGameOver
	}
	if g.Player1.ID == id {
		return ErrSelfJoin
	}
	if g.Player2 != nil {
		return ErrGameFull
	}
	g.Player2 = NewPlayer(id, handle)
	g.Phase = PhasePlacing
	return nil
}

type ShipSpec struct {
	X        int
	Y        int
	Size     int
	Vertical bool
}

type PlacementResult struct {
	AlreadyPlaced bool // repeat submission after success; nothing mutated
	Started       bool // both fleets down, match is now Playing
}

// PlaceFleet validates and commits a full fleet atomically. A repeat
// submission after success is a no-op reported via AlreadyPlaced; any
// invalid ship clears the whole attempt.
func (g *Game) PlaceFleet(id uuid.UUID, specs []ShipSpec) (PlacementResult, error) {
	switch g.Phase {
	case PhaseFinished:
		return PlacementResult{}, ErrGameOver
	case PhasePlaying, PhaseSuddenDeath:
		return PlacementResult{}, ErrInvalidState
	}

	p, ok := g.PlayerByID(id)
	if !ok {
		return PlacementResult{}, ErrNotInGame
	}
	if p.FleetPlaced {
		return PlacementResult{AlreadyPlaced: true}, nil
	}

	if !validFleetSizes(specs) {
		return PlacementResult{}, ErrValidation
	}

	p.clearFleet()
	for _, sp := range specs {
		ship := Ship{Size: sp.Size, X: sp.X, Y: sp.Y, Vertical: sp.Vertical}
		if err := p.placeShip(ship); err != nil {
			p.clearFleet()
			return PlacementResult{}, err
		}
	}
	p.FleetPlaced = true

	if g.Player2 != nil && g.Player1.FleetPlaced && g.Player2.FleetPlaced {
		g.Phase = PhasePlaying
		t := now()
		g.StartedAt = &t
		return PlacementResult{Started: true}, nil
	}
	return PlacementResult{}, nil
}

func validFleetSizes(specs []ShipSpec) bool {
	if len(specs) != len(fleetSizes) {
		return false
	}
	sizes := make([]int, len(specs))
	for i, sp := range specs {
		sizes[i] = sp.Size
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	for i, s := range sizes {
		if s != fleetSizes[i] {
			return false
		}
	}
	return true
}

type FireResult struct {
	Outcome        ShotOutcome
	Sunk           bool // this shot sank a ship
	AllSunk        bool // target fleet is gone; match finished
	SuddenDeathWin bool // first hit in sudden death; match finished
	NowLocked      bool // this shot pushed the shooter over the heat threshold
}

// Fire resolves one shot. A locked shooter is admitted only when an active
// veto timer has expired, in which case the lock clears lazily here.
func (g *Game) Fire(id uuid.UUID, x, y int) (FireResult, error) {
	if g.Phase == PhaseFinished {
		return FireResult{}, ErrGameOver
	}
	if g.Phase != PhasePlaying && g.Phase != PhaseSuddenDeath {
		return FireResult{}, ErrInvalidState
	}

	shooter, ok := g.PlayerByID(id)
	if !ok {
		return FireResult{}, ErrNotInGame
	}
	target := g.Opponent(id)
	if target == nil {
		return FireResult{}, ErrInvalidState
	}

	if shooter.Locked {
		if shooter.VetoStartedAt == nil {
			return FireResult{}, ErrLocked
		}
		if _, active := shooter.VetoRemaining(g.Config.VetoPenalties); active {
			return FireResult{}, ErrLocked
		}
		shooter.Unlock()
		shooter.VetoStartedAt = nil
	}

	if !InBounds(x, y) {
		return FireResult{}, ErrValidation
	}

	res := FireResult{Outcome: target.Grid.ReceiveShot(x, y)}
	switch res.Outcome {
	case OutcomeHit:
		shooter.Stats.CellsHit++
		for i := range target.Fleet {
			s := &target.Fleet[i]
			if !s.covers(x, y) {
				continue
			}
			s.Hits++
			if s.Hits >= s.Size && !s.Sunk {
				s.Sunk = true
				shooter.Stats.ShipsSunk++
				res.Sunk = true
			}
			break
		}
	case OutcomeMiss:
		shooter.Stats.CellsMissed++
	case OutcomeRepeat:
		// No stat change, no heat change.
		return res, nil
	}

	shooter.Heat++
	if shooter.Heat >= g.Config.HeatThreshold && !shooter.Locked {
		shooter.Locked = true
		res.NowLocked = true
	}

	if res.Outcome == OutcomeHit {
		if g.Phase == PhaseSuddenDeath {
			res.SuddenDeathWin = true
			g.finish()
		} else if target.FleetSunk() {
			res.AllSunk = true
			g.finish()
		}
	}
	return res, nil
}

func (g *Game) finish() {
	g.Phase = PhaseFinished
	t := now()
	g.FinishedAt = &t
}

// StartVeto arms a forced-cooldown timer for a locked player and returns the
// penalty duration. The penalty table is indexed by vetoes already used.
func (g *Game) StartVeto(id uuid.UUID) (time.Duration, error) {
	if g.Phase == PhaseFinished {
		return 0, ErrGameOver
	}
	p, ok := g.PlayerByID(id)
	if !ok {
		return 0, ErrNotInGame
	}
	if !p.Locked {
		return 0, ErrNotLocked
	}
	if p.VetoStartedAt != nil {
		return 0, ErrVetoPending
	}
	if p.VetoesUsed >= g.Config.MaxVetoes {
		return 0, ErrNoVetoes
	}

	idx := p.VetoesUsed
	if idx >= len(g.Config.VetoPenalties) {
		idx = len(g.Config.VetoPenalties) - 1
	}
	d := g.Config.VetoPenalties[idx]

	t := now()
	p.VetoStartedAt = &t
	p.VetoesUsed++
	return d, nil
}

// BeginSolveCheck gates a verification attempt: rejected during an active
// veto timer and rate-limited to one attempt per cooldown. On success the
// attempt is stamped and the player's external handle returned; the actual
// verifier call happens outside the registry lock.
func (g *Game) BeginSolveCheck(id uuid.UUID) (string, error) {
	if g.Phase == PhaseFinished {
		return "", ErrGameOver
	}
	p, ok := g.PlayerByID(id)
	if !ok {
		return "", ErrNotInGame
	}
	if p.VetoStartedAt != nil {
		if _, active := p.VetoRemaining(g.Config.VetoPenalties); active {
			return "", ErrVetoPending
		}
		// Timer ran out but nothing collected it yet; clear it here.
		p.Unlock()
		p.VetoStartedAt = nil
	}
	if p.LastSolveAt != nil && now().Sub(*p.LastSolveAt) < solveCooldown {
		return "", ErrRateLimited
	}
	t := now()
	p.LastSolveAt = &t
	return p.Handle, nil
}

// CompleteSolve applies a successful verification. Callers re-enter the
// registry lock before this, so the phase is re-checked: the match may have
// finished while the verifier call was in flight.
func (g *Game) CompleteSolve(id uuid.UUID) error {
	if g.Phase == PhaseFinished {
		return ErrGameOver
	}
	p, ok := g.PlayerByID(id)
	if !ok {
		return ErrNotInGame
	}
	p.Unlock()
	p.VetoStartedAt = nil
	p.Stats.ProblemsSolved++
	return nil
}

// Remaining reports the match clock. Before the match starts it is the full
// configured duration.
func (g *Game) Remaining() time.Duration {
	if g.StartedAt == nil {
		return g.Config.Duration
	}
	left := g.Config.Duration - now().Sub(*g.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

type TiebreakResult int

const (
	TiebreakPlayer1 TiebreakResult = iota
	TiebreakPlayer2
	TiebreakTie
)

// DetermineWinner applies the lexicographic tie-break: surviving ships, then
// cells hit, then problems solved, each descending. Full equality is a tie.
func (g *Game) DetermineWinner() TiebreakResult {
	p1 := g.Player1
	p2 := g.Player2
	if p2 == nil {
		return TiebreakPlayer1
	}

	if a, b := p1.SurvivingShips(), p2.SurvivingShips(); a != b {
		if a > b {
			return TiebreakPlayer1
		}
		return TiebreakPlayer2
	}
	if a, b := p1.Stats.CellsHit, p2.Stats.CellsHit; a != b {
		if a > b {
			return TiebreakPlayer1
		}
		return TiebreakPlayer2
	}
	if a, b := p1.Stats.ProblemsSolved, p2.Stats.ProblemsSolved; a != b {
		if a > b {
			return TiebreakPlayer1
		}
		return TiebreakPlayer2
	}
	return TiebreakTie
}

type TimeoutResolution struct {
	Expired     bool
	SuddenDeath bool
	WinnerID    *uuid.UUID
}

// ResolveTimeout checks the match clock and, once elapsed, either finishes
// the match with the tie-break winner or drops into sudden death with both
// players' weapons unlocked.
func (g *Game) ResolveTimeout() TimeoutResolution {
	if g.Phase != PhasePlaying || g.StartedAt == nil {
		return TimeoutResolution{}
	}
	if now().Sub(*g.StartedAt) < g.Config.Duration {
		return TimeoutResolution{}
	}

	switch g.DetermineWinner() {
	case TiebreakPlayer1:
		g.finish()
		id := g.Player1.ID
		return TimeoutResolution{Expired: true, WinnerID: &id}
	case TiebreakPlayer2:
		g.finish()
		id := g.Player2.ID
		return TimeoutResolution{Expired: true, WinnerID: &id}
	default:
		g.Phase = PhaseSuddenDeath
		for _, p := range []*Player{g.Player1, g.Player2} {
			if p == nil {
				continue
			}
			p.Unlock()
			p.VetoStartedAt = nil
		}
		return TimeoutResolution{Expired: true, SuddenDeath: true}
	}
}

// ExpireVetoes clears every lock whose veto timer has run out and returns
// the unlocked player ids. Only meaningful mid-combat.
func (g *Game) ExpireVetoes() []uuid.UUID {
	if g.Phase != PhasePlaying && g.Phase != PhaseSuddenDeath {
		return nil
	}
	var unlocked []uuid.UUID
	for _, p := range []*Player{g.Player1, g.Player2} {
		if p == nil || !p.Locked || p.VetoStartedAt == nil {
			continue
		}
		if _, active := p.VetoRemaining(g.Config.VetoPenalties); active {
			continue
		}
		p.Unlock()
		p.VetoStartedAt = nil
		unlocked = append(unlocked, p.ID)
	}
	return unlocked
}

// Update is the per-player view pushed on every tick and resync.
type Update struct {
	Status          string
	Active          bool
	Heat            int
	Locked          bool
	Remaining       time.Duration
	VetoesRemaining int
	VetoRemaining   *time.Duration
}

// Snapshot builds the personalized state view for one player.
func (g *Game) Snapshot(id uuid.UUID) (Update, bool) {
	p, ok := g.PlayerByID(id)
	if !ok {
		return Update{}, false
	}
	u := Update{
		Status:          string(g.Phase),
		Active:          g.Phase == PhasePlaying || g.Phase == PhaseSuddenDeath,
		Heat:            p.Heat,
		Locked:          p.Locked,
		Remaining:       g.Remaining(),
		VetoesRemaining: g.Config.MaxVetoes - p.VetoesUsed,
	}
	if u.VetoesRemaining < 0 {
		u.VetoesRemaining = 0
	}
	if left, active := p.VetoRemaining(g.Config.VetoPenalties); active {
		u.VetoRemaining = &left
	}
	return u, true
}
