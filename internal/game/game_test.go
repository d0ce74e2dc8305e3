package game

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// standardFleet is a legal non-overlapping placement of the {5,4,3,3,2}
// composition.
func standardFleet() []ShipSpec {
	return []ShipSpec{
		{X: 0, Y: 0, Size: 5},
		{X: 0, Y: 1, Size: 4},
		{X: 0, Y: 2, Size: 3},
		{X: 4, Y: 2, Size: 3},
		{X: 0, Y: 3, Size: 2},
	}
}

// startedGame returns a match in Playing with both fleets down.
func startedGame(t *testing.T) (*Game, uuid.UUID, uuid.UUID) {
	t.Helper()
	p1 := uuid.New()
	p2 := uuid.New()
	g := New(p1, "host", DefaultConfig())
	if err := g.Join(p2, "guest"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := g.PlaceFleet(p1, standardFleet()); err != nil {
		t.Fatalf("p1 place: %v", err)
	}
	res, err := g.PlaceFleet(p2, standardFleet())
	if err != nil {
		t.Fatalf("p2 place: %v", err)
	}
	if !res.Started {
		t.Fatalf("expected match to start after both placements")
	}
	if g.Phase != PhasePlaying {
		t.Fatalf("phase after both placements: got %v, want %v", g.Phase, PhasePlaying)
	}
	if g.StartedAt == nil {
		t.Fatalf("StartedAt not set on start")
	}
	return g, p1, p2
}

func TestJoinRules(t *testing.T) {
	p1 := uuid.New()
	g := New(p1, "host", DefaultConfig())

	if err := g.Join(p1, "host"); !errors.Is(err, ErrSelfJoin) {
		t.Fatalf("self join: got %v, want ErrSelfJoin", err)
	}

	p2 := uuid.New()
	if err := g.Join(p2, "guest"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if g.Phase != PhasePlacing {
		t.Fatalf("phase after join: got %v, want %v", g.Phase, PhasePlacing)
	}

	if err := g.Join(uuid.New(), "third"); !errors.Is(err, ErrGameFull) {
		t.Fatalf("third join: got %v, want ErrGameFull", err)
	}
}

func TestFleetValidation(t *testing.T) {
	cases := []struct {
		name  string
		specs []ShipSpec
	}{
		{
			name:  "too few ships",
			specs: standardFleet()[:4],
		},
		{
			name: "wrong size multiset",
			specs: []ShipSpec{
				{X: 0, Y: 0, Size: 5}, {X: 0, Y: 1, Size: 5},
				{X: 0, Y: 2, Size: 3}, {X: 4, Y: 2, Size: 3}, {X: 0, Y: 3, Size: 2},
			},
		},
		{
			name: "ship extends past the edge",
			specs: []ShipSpec{
				{X: 6, Y: 0, Size: 5}, {X: 0, Y: 1, Size: 4},
				{X: 0, Y: 2, Size: 3}, {X: 4, Y: 2, Size: 3}, {X: 0, Y: 3, Size: 2},
			},
		},
		{
			name: "overlapping ships",
			specs: []ShipSpec{
				{X: 0, Y: 0, Size: 5}, {X: 2, Y: 0, Size: 4, Vertical: true},
				{X: 0, Y: 2, Size: 3}, {X: 4, Y: 2, Size: 3}, {X: 0, Y: 3, Size: 2},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p1 := uuid.New()
			g := New(p1, "host", DefaultConfig())
			_, err := g.PlaceFleet(p1, tc.specs)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
			// No partial placement may survive a failed submission.
			if len(g.Player1.Fleet) != 0 {
				t.Fatalf("fleet not cleared after failure: %d ships", len(g.Player1.Fleet))
			}
			if g.Player1.Grid.ShipCellsRemaining() != 0 {
				t.Fatalf("grid not cleared after failure")
			}
			if g.Player1.FleetPlaced {
				t.Fatalf("FleetPlaced set after failure")
			}
		})
	}
}

func TestPlaceFleetIdempotent(t *testing.T) {
	g, p1, _ := startedGame(t)
	started := *g.StartedAt

	res, err := g.PlaceFleet(p1, standardFleet())
	if err != nil {
		t.Fatalf("repeat placement: %v", err)
	}
	if !res.AlreadyPlaced || res.Started {
		t.Fatalf("repeat placement: got %+v, want AlreadyPlaced only", res)
	}
	if g.Phase != PhasePlaying || !g.StartedAt.Equal(started) {
		t.Fatalf("repeat placement mutated match state")
	}
	if len(g.Player1.Fleet) != 5 {
		t.Fatalf("repeat placement mutated fleet: %d ships", len(g.Player1.Fleet))
	}
}

func TestHeatAndLockThreshold(t *testing.T) {
	g, p1, _ := startedGame(t)
	g.Config.HeatThreshold = 7

	// Six resolved shots along the empty bottom row: still unlocked.
	for i := 0; i < 6; i++ {
		res, err := g.Fire(p1, i, 9)
		if err != nil {
			t.Fatalf("shot %d: %v", i, err)
		}
		if res.Outcome != OutcomeMiss {
			t.Fatalf("shot %d: got %v, want miss", i, res.Outcome)
		}
	}
	if g.Player1.Heat != 6 || g.Player1.Locked {
		t.Fatalf("after 6 shots: heat=%d locked=%v", g.Player1.Heat, g.Player1.Locked)
	}

	// Seventh shot reaches the threshold.
	res, err := g.Fire(p1, 6, 9)
	if err != nil {
		t.Fatalf("7th shot: %v", err)
	}
	if !res.NowLocked || !g.Player1.Locked || g.Player1.Heat != 7 {
		t.Fatalf("after 7th shot: heat=%d locked=%v nowLocked=%v",
			g.Player1.Heat, g.Player1.Locked, res.NowLocked)
	}

	// Locked with no veto timer: firing fails.
	if _, err := g.Fire(p1, 7, 9); !errors.Is(err, ErrLocked) {
		t.Fatalf("locked fire: got %v, want ErrLocked", err)
	}
}

func TestRepeatShotChangesNothing(t *testing.T) {
	g, p1, _ := startedGame(t)

	if _, err := g.Fire(p1, 0, 9); err != nil {
		t.Fatalf("first shot: %v", err)
	}
	heat := g.Player1.Heat
	stats := g.Player1.Stats

	res, err := g.Fire(p1, 0, 9)
	if err != nil {
		t.Fatalf("repeat shot: %v", err)
	}
	if res.Outcome != OutcomeRepeat {
		t.Fatalf("repeat shot: got %v, want repeat", res.Outcome)
	}
	if g.Player1.Heat != heat || g.Player1.Stats != stats {
		t.Fatalf("repeat shot mutated heat or stats")
	}
}

func TestFireOutOfBounds(t *testing.T) {
	g, p1, _ := startedGame(t)
	if _, err := g.Fire(p1, 10, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("out of bounds: got %v, want ErrValidation", err)
	}
}

func TestFireBeforePlaying(t *testing.T) {
	p1 := uuid.New()
	g := New(p1, "host", DefaultConfig())
	if _, err := g.Fire(p1, 0, 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("fire while waiting: got %v, want ErrInvalidState", err)
	}
}

func TestSinkShipCreditsShooter(t *testing.T) {
	g, p1, _ := startedGame(t)

	// Destroyer at (0,3)-(1,3).
	if res, _ := g.Fire(p1, 0, 3); res.Sunk {
		t.Fatalf("first hit should not sink")
	}
	res, err := g.Fire(p1, 1, 3)
	if err != nil {
		t.Fatalf("second hit: %v", err)
	}
	if !res.Sunk {
		t.Fatalf("destroyer should be sunk")
	}
	if g.Player1.Stats.ShipsSunk != 1 || g.Player1.Stats.CellsHit != 2 {
		t.Fatalf("shooter stats: %+v", g.Player1.Stats)
	}
	if g.Player2.SurvivingShips() != 4 {
		t.Fatalf("target surviving ships: %d", g.Player2.SurvivingShips())
	}
}

func TestAllSunkFinishesMatch(t *testing.T) {
	g, p1, _ := startedGame(t)
	g.Config.HeatThreshold = 100 // keep the shooter unlocked throughout

	var last FireResult
	for _, sp := range standardFleet() {
		for i := 0; i < sp.Size; i++ {
			var err error
			last, err = g.Fire(p1, sp.X+i, sp.Y)
			if err != nil {
				t.Fatalf("fire (%d,%d): %v", sp.X+i, sp.Y, err)
			}
		}
	}
	if !last.AllSunk {
		t.Fatalf("final shot should report AllSunk")
	}
	if g.Phase != PhaseFinished || g.FinishedAt == nil {
		t.Fatalf("match not finished: phase=%v", g.Phase)
	}

	if _, err := g.Fire(p1, 9, 9); !errors.Is(err, ErrGameOver) {
		t.Fatalf("fire after finish: got %v, want ErrGameOver", err)
	}
}

func TestDetermineWinner(t *testing.T) {
	cases := []struct {
		name  string
		setup func(g *Game)
		want  TiebreakResult
	}{
		{
			name: "more surviving ships wins",
			setup: func(g *Game) {
				g.Player1.Stats.CellsHit = 10
				g.Player2.Stats.CellsHit = 10
				g.Player2.Fleet[0].Sunk = true
				g.Player2.Fleet[1].Sunk = true
			},
			want: TiebreakPlayer1,
		},
		{
			name: "equal ships, more cells hit wins",
			setup: func(g *Game) {
				g.Player1.Stats.CellsHit = 5
				g.Player2.Stats.CellsHit = 10
			},
			want: TiebreakPlayer2,
		},
		{
			name: "equal ships and hits, more problems solved wins",
			setup: func(g *Game) {
				g.Player1.Stats.CellsHit = 10
				g.Player2.Stats.CellsHit = 10
				g.Player1.Stats.ProblemsSolved = 1
			},
			want: TiebreakPlayer1,
		},
		{
			name:  "all equal is a tie",
			setup: func(g *Game) {},
			want:  TiebreakTie,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _, _ := startedGame(t)
			tc.setup(g)
			if got := g.DetermineWinner(); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVetoMechanism(t *testing.T) {
	g, p1, _ := startedGame(t)

	// Not locked: veto rejected.
	if _, err := g.StartVeto(p1); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("unlocked veto: got %v, want ErrNotLocked", err)
	}

	g.Player1.Locked = true
	d, err := g.StartVeto(p1)
	if err != nil {
		t.Fatalf("first veto: %v", err)
	}
	if d != g.Config.VetoPenalties[0] {
		t.Fatalf("first veto penalty: got %v, want %v", d, g.Config.VetoPenalties[0])
	}
	if g.Player1.VetoesUsed != 1 || g.Player1.VetoStartedAt == nil {
		t.Fatalf("veto state: used=%d started=%v", g.Player1.VetoesUsed, g.Player1.VetoStartedAt)
	}

	// Second veto while the first is still pending.
	if _, err := g.StartVeto(p1); !errors.Is(err, ErrVetoPending) {
		t.Fatalf("veto during veto: got %v, want ErrVetoPending", err)
	}

	// Solve attempts are rejected during an active veto.
	if _, err := g.BeginSolveCheck(p1); !errors.Is(err, ErrVetoPending) {
		t.Fatalf("solve during veto: got %v, want ErrVetoPending", err)
	}

	// Firing during an active veto stays rejected.
	if _, err := g.Fire(p1, 0, 9); !errors.Is(err, ErrLocked) {
		t.Fatalf("fire during veto: got %v, want ErrLocked", err)
	}
}

func TestVetoQuotaExhausted(t *testing.T) {
	g, p1, _ := startedGame(t)
	g.Player1.Locked = true
	g.Player1.VetoesUsed = g.Config.MaxVetoes

	if _, err := g.StartVeto(p1); !errors.Is(err, ErrNoVetoes) {
		t.Fatalf("exhausted quota: got %v, want ErrNoVetoes", err)
	}
}

func TestVetoPenaltyEscalates(t *testing.T) {
	g, p1, _ := startedGame(t)
	g.Player1.Locked = true
	g.Player1.VetoesUsed = 1

	d, err := g.StartVeto(p1)
	if err != nil {
		t.Fatalf("second veto: %v", err)
	}
	if d != g.Config.VetoPenalties[1] {
		t.Fatalf("second veto penalty: got %v, want %v", d, g.Config.VetoPenalties[1])
	}
}

func TestLazyVetoExpiryUnlocksOnFire(t *testing.T) {
	base := time.Now()
	restore := now
	now = func() time.Time { return base }
	defer func() { now = restore }()

	g, p1, _ := startedGame(t)
	g.Player1.Locked = true
	if _, err := g.StartVeto(p1); err != nil {
		t.Fatalf("veto: %v", err)
	}

	// Advance past the first penalty.
	now = func() time.Time { return base.Add(g.Config.VetoPenalties[0] + time.Second) }

	res, err := g.Fire(p1, 0, 9)
	if err != nil {
		t.Fatalf("fire after expiry: %v", err)
	}
	if res.Outcome != OutcomeMiss {
		t.Fatalf("fire after expiry: got %v, want miss", res.Outcome)
	}
	// Unlock reset heat to 0, then the shot added 1.
	if g.Player1.Heat != 1 || g.Player1.Locked || g.Player1.VetoStartedAt != nil {
		t.Fatalf("after lazy expiry: heat=%d locked=%v timer=%v",
			g.Player1.Heat, g.Player1.Locked, g.Player1.VetoStartedAt)
	}
}

func TestSolveCheckRateLimit(t *testing.T) {
	base := time.Now()
	restore := now
	now = func() time.Time { return base }
	defer func() { now = restore }()

	g, p1, _ := startedGame(t)

	handle, err := g.BeginSolveCheck(p1)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if handle != "host" {
		t.Fatalf("handle: got %q, want %q", handle, "host")
	}

	if _, err := g.BeginSolveCheck(p1); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("immediate retry: got %v, want ErrRateLimited", err)
	}

	now = func() time.Time { return base.Add(solveCooldown + time.Second) }
	if _, err := g.BeginSolveCheck(p1); err != nil {
		t.Fatalf("retry after cooldown: %v", err)
	}
}

func TestCompleteSolveUnlocks(t *testing.T) {
	g, p1, _ := startedGame(t)
	g.Player1.Locked = true
	g.Player1.Heat = 7

	if err := g.CompleteSolve(p1); err != nil {
		t.Fatalf("complete solve: %v", err)
	}
	if g.Player1.Locked || g.Player1.Heat != 0 {
		t.Fatalf("unlock must reset heat and lock: heat=%d locked=%v",
			g.Player1.Heat, g.Player1.Locked)
	}
	if g.Player1.Stats.ProblemsSolved != 1 {
		t.Fatalf("problems solved: %d", g.Player1.Stats.ProblemsSolved)
	}

	// A match that finished while the verifier call was in flight rejects
	// the late result.
	g.finish()
	if err := g.CompleteSolve(p1); !errors.Is(err, ErrGameOver) {
		t.Fatalf("solve after finish: got %v, want ErrGameOver", err)
	}
}

func TestResolveTimeout(t *testing.T) {
	base := time.Now()
	restore := now
	now = func() time.Time { return base }
	defer func() { now = restore }()

	t.Run("strict winner finishes the match", func(t *testing.T) {
		g, p1, _ := startedGame(t)
		g.Player2.Fleet[0].Sunk = true

		now = func() time.Time { return base.Add(g.Config.Duration) }
		res := g.ResolveTimeout()
		now = func() time.Time { return base }

		if !res.Expired || res.SuddenDeath {
			t.Fatalf("resolution: %+v", res)
		}
		if res.WinnerID == nil || *res.WinnerID != p1 {
			t.Fatalf("winner: %v, want %v", res.WinnerID, p1)
		}
		if g.Phase != PhaseFinished {
			t.Fatalf("phase: %v", g.Phase)
		}
	})

	t.Run("full tie enters sudden death unlocked", func(t *testing.T) {
		g, _, _ := startedGame(t)
		g.Player1.Locked = true
		g.Player1.Heat = 9
		ts := base
		g.Player1.VetoStartedAt = &ts

		now = func() time.Time { return base.Add(g.Config.Duration) }
		res := g.ResolveTimeout()
		now = func() time.Time { return base }

		if !res.Expired || !res.SuddenDeath {
			t.Fatalf("resolution: %+v", res)
		}
		if g.Phase != PhaseSuddenDeath {
			t.Fatalf("phase: %v", g.Phase)
		}
		if g.Player1.Locked || g.Player1.Heat != 0 || g.Player1.VetoStartedAt != nil {
			t.Fatalf("sudden death entry must unlock unconditionally")
		}
	})

	t.Run("clock not yet elapsed is a no-op", func(t *testing.T) {
		g, _, _ := startedGame(t)
		if res := g.ResolveTimeout(); res.Expired {
			t.Fatalf("premature resolution: %+v", res)
		}
		if g.Phase != PhasePlaying {
			t.Fatalf("phase: %v", g.Phase)
		}
	})
}

func TestSuddenDeathFirstHitWins(t *testing.T) {
	g, p1, _ := startedGame(t)
	g.Phase = PhaseSuddenDeath

	// A miss does not end the match.
	if res, err := g.Fire(p1, 9, 9); err != nil || res.SuddenDeathWin {
		t.Fatalf("miss in sudden death: res=%+v err=%v", res, err)
	}

	// First confirmed hit wins outright, regardless of fleet state.
	res, err := g.Fire(p1, 0, 0)
	if err != nil {
		t.Fatalf("hit in sudden death: %v", err)
	}
	if !res.SuddenDeathWin {
		t.Fatalf("expected sudden-death win")
	}
	if g.Phase != PhaseFinished || g.FinishedAt == nil {
		t.Fatalf("match not finished: phase=%v", g.Phase)
	}
}

func TestSnapshot(t *testing.T) {
	base := time.Now()
	restore := now
	now = func() time.Time { return base }
	defer func() { now = restore }()

	g, p1, _ := startedGame(t)
	g.Player1.Heat = 3
	g.Player1.Locked = true
	ts := base
	g.Player1.VetoStartedAt = &ts
	g.Player1.VetoesUsed = 1

	now = func() time.Time { return base.Add(time.Minute) }

	u, ok := g.Snapshot(p1)
	if !ok {
		t.Fatalf("snapshot: player not found")
	}
	if u.Status != string(PhasePlaying) || !u.Active {
		t.Fatalf("snapshot status: %+v", u)
	}
	if u.Heat != 3 || !u.Locked {
		t.Fatalf("snapshot heat/lock: %+v", u)
	}
	if u.Remaining != g.Config.Duration-time.Minute {
		t.Fatalf("remaining: %v", u.Remaining)
	}
	if u.VetoesRemaining != g.Config.MaxVetoes-1 {
		t.Fatalf("vetoes remaining: %d", u.VetoesRemaining)
	}
	if u.VetoRemaining == nil || *u.VetoRemaining != g.Config.VetoPenalties[0]-time.Minute {
		t.Fatalf("veto remaining: %v", u.VetoRemaining)
	}

	if _, ok := g.Snapshot(uuid.New()); ok {
		t.Fatalf("snapshot for a stranger must fail")
	}
}

func TestBuildConfigClamps(t *testing.T) {
	cases := []struct {
		name                             string
		difficulty, threshold, durationM int
		strictness                       string
		check                            func(t *testing.T, c Config)
	}{
		{
			name: "zero values select defaults",
			check: func(t *testing.T, c Config) {
				if c != DefaultConfig() {
					t.Fatalf("got %+v, want defaults", c)
				}
			},
		},
		{
			name: "duration clamped to range", durationM: 1000,
			check: func(t *testing.T, c Config) {
				if c.Duration != 7200*time.Second {
					t.Fatalf("duration: %v", c.Duration)
				}
			},
		},
		{
			name: "tiny duration raised to floor", durationM: 1,
			check: func(t *testing.T, c Config) {
				if c.Duration != 300*time.Second {
					t.Fatalf("duration: %v", c.Duration)
				}
			},
		},
		{
			name: "threshold clamped", threshold: 100,
			check: func(t *testing.T, c Config) {
				if c.HeatThreshold != 20 {
					t.Fatalf("threshold: %d", c.HeatThreshold)
				}
			},
		},
		{
			name: "strictness tiers", strictness: "high",
			check: func(t *testing.T, c Config) {
				if c.VetoPenalties[0] != 600*time.Second {
					t.Fatalf("penalties: %v", c.VetoPenalties)
				}
			},
		},
		{
			name: "unknown strictness falls back to medium", strictness: "brutal",
			check: func(t *testing.T, c Config) {
				if c.VetoPenalties != DefaultConfig().VetoPenalties {
					t.Fatalf("penalties: %v", c.VetoPenalties)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, BuildConfig(tc.difficulty, tc.threshold, tc.durationM, tc.strictness))
		})
	}
}
