// Package sweep runs the single process-wide timer loop. One pass per
// second walks every game under the registry's exclusive lock: ticks the
// fanouts, collects expired veto lockouts, enforces the match clock, and
// prunes dead games. No per-game timers exist anywhere.
package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/battlecp/battlecp-backend/internal/fanout"
	"github.com/battlecp/battlecp-backend/internal/game"
	"github.com/battlecp/battlecp-backend/internal/metrics"
	"github.com/battlecp/battlecp-backend/internal/protocol"
	"github.com/battlecp/battlecp-backend/internal/registry"
)

const (
	// How long terminated and never-started games linger before removal.
	finishedRetention = 300 * time.Second
	waitingRetention  = 1800 * time.Second
)

var now = time.Now

type Sweeper struct {
	registry *registry.Registry
	interval time.Duration
	log      *zap.Logger
}

func New(reg *registry.Registry, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{registry: reg, interval: interval, log: log}
}

// Run loops until ctx is cancelled. The server runs this for its whole
// lifetime.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Pass()
		}
	}
}

// Pass executes one full sweep. Exported so tests can drive sweeps without
// waiting on the ticker.
func (s *Sweeper) Pass() {
	start := time.Now()
	s.registry.Sweep(s.sweepGame)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
}

// sweepGame handles a single game and reports whether to prune it. A panic
// from one game's state must not abort the rest of the pass.
func (s *Sweeper) sweepGame(id uuid.UUID, g *game.Game) (prune bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep step panicked",
				zap.String("game_id", id.String()), zap.Any("panic", r))
		}
	}()

	s.publish(g, fanout.Tick{})

	for range g.ExpireVetoes() {
		s.publish(g, fanout.Broadcast{Msg: protocol.NewWeaponsUnlocked("veto_expired")})
	}

	if res := g.ResolveTimeout(); res.Expired {
		if res.SuddenDeath {
			s.log.Info("match entered sudden death", zap.String("game_id", id.String()))
			s.publish(g, fanout.Broadcast{Msg: protocol.NewGameUpdate(
				string(game.PhaseSuddenDeath), true, 0, false,
				0, 0, nil)})
		} else {
			var stats game.Stats
			if p, ok := g.PlayerByID(*res.WinnerID); ok {
				stats = p.Stats
			}
			s.log.Info("match timed out",
				zap.String("game_id", id.String()),
				zap.String("winner_id", res.WinnerID.String()))
			s.publish(g, fanout.Broadcast{Msg: protocol.NewGameOver(res.WinnerID,
				"Timeout", stats.CellsHit, stats.CellsMissed, stats.ShipsSunk, stats.ProblemsSolved)})
		}
	}

	switch g.Phase {
	case game.PhaseFinished:
		if g.FinishedAt != nil && now().Sub(*g.FinishedAt) > finishedRetention {
			s.log.Info("pruning finished game", zap.String("game_id", id.String()))
			return true
		}
	case game.PhaseWaiting:
		if now().Sub(g.CreatedAt) > waitingRetention {
			s.log.Info("pruning abandoned game", zap.String("game_id", id.String()))
			return true
		}
	}
	return false
}

func (s *Sweeper) publish(g *game.Game, ev fanout.Event) {
	if n := g.Events.Publish(ev); n > 0 {
		metrics.FanoutDropped.Add(float64(n))
	}
}
