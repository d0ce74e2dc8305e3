package ws

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/battlecp/battlecp-backend/internal/game"
	"github.com/battlecp/battlecp-backend/internal/protocol"
	"github.com/battlecp/battlecp-backend/internal/registry"
	"github.com/battlecp/battlecp-backend/internal/verify"
)

// dispatch applies one inbound message and returns the direct replies for
// this socket. Broadcasts to the whole match go through the fanout inside
// the registry critical section, keeping event order consistent with state.
func (h *handler) dispatch(ctx context.Context, msg protocol.ClientMessage) []protocol.ServerMessage {
	switch m := msg.(type) {
	case protocol.JoinGame:
		return h.handleJoin(ctx, m)
	case protocol.PlaceShips:
		return h.handlePlaceShips(m)
	case protocol.Fire:
		return h.handleFire(m)
	case protocol.SolveCheck:
		return h.handleSolveCheck(ctx, m)
	case protocol.Veto:
		return h.handleVeto()
	default:
		return []protocol.ServerMessage{protocol.NewError("unsupported message")}
	}
}

func (h *handler) handleJoin(ctx context.Context, m protocol.JoinGame) []protocol.ServerMessage {
	h.bindPlayer(m.PlayerID)

	// First pass: resync if this identity is already bound to the match.
	var replies []protocol.ServerMessage
	needsVerify := false
	err := h.deps.Registry.With(h.gameID, func(g *game.Game) error {
		if _, ok := g.PlayerByID(m.PlayerID); ok {
			replies = resyncReplies(g, m.PlayerID)
			return nil
		}
		if g.Phase == game.PhaseFinished {
			return game.ErrGameOver
		}
		if g.Player2 != nil {
			return game.ErrGameFull
		}
		if g.Player1.ID == m.PlayerID {
			return game.ErrSelfJoin
		}
		needsVerify = true
		return nil
	})
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	if !needsVerify {
		return replies
	}

	// The handle check talks to the external service, so it runs with the
	// lock released. Fail closed on any verifier trouble.
	exists, err := h.deps.Verifier.VerifyHandleExists(ctx, m.Handle)
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	if !exists {
		return []protocol.ServerMessage{protocol.NewError("Codeforces handle '" + m.Handle + "' not found")}
	}

	// Second pass: re-validate, the match may have changed while the
	// verifier call was in flight.
	err = h.deps.Registry.With(h.gameID, func(g *game.Game) error {
		if _, ok := g.PlayerByID(m.PlayerID); ok {
			replies = resyncReplies(g, m.PlayerID)
			return nil
		}
		if err := g.Join(m.PlayerID, m.Handle); err != nil {
			return err
		}
		h.publish(g, protocol.NewPlayerJoined(m.PlayerID))
		replies = []protocol.ServerMessage{
			joinedFrame(g, m.PlayerID),
			protocol.NewPlayerJoined(g.Player1.ID),
		}
		return nil
	})
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	h.log.Info("player joined", zap.String("player_id", m.PlayerID.String()))
	return replies
}

func (h *handler) handlePlaceShips(m protocol.PlaceShips) []protocol.ServerMessage {
	pid := h.player()
	if pid == uuid.Nil {
		return []protocol.ServerMessage{protocol.NewError("no player id; send JoinGame first")}
	}

	specs := make([]game.ShipSpec, len(m.Ships))
	for i, s := range m.Ships {
		specs[i] = game.ShipSpec{X: s.X, Y: s.Y, Size: s.Size, Vertical: s.Vertical}
	}

	var replies []protocol.ServerMessage
	err := h.deps.Registry.With(h.gameID, func(g *game.Game) error {
		res, err := g.PlaceFleet(pid, specs)
		if err != nil {
			return err
		}

		if res.AlreadyPlaced {
			// Idempotent repeat: confirm without re-broadcasting anything.
			u, _ := g.Snapshot(pid)
			replies = []protocol.ServerMessage{
				protocol.NewShipsConfirmed(pid),
				updateFrame(u),
			}
			return nil
		}

		h.publish(g, protocol.NewShipsConfirmed(pid))
		if res.Started {
			h.publish(g, protocol.NewGameStart())
		}
		u, _ := g.Snapshot(pid)
		replies = []protocol.ServerMessage{updateFrame(u)}
		return nil
	})
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	return replies
}

func (h *handler) handleFire(m protocol.Fire) []protocol.ServerMessage {
	pid := h.player()
	if pid == uuid.Nil {
		return []protocol.ServerMessage{protocol.NewError("no player id; send JoinGame first")}
	}

	var replies []protocol.ServerMessage
	err := h.deps.Registry.With(h.gameID, func(g *game.Game) error {
		res, err := g.Fire(pid, m.X, m.Y)
		if err != nil {
			return err
		}

		shot := protocol.NewShotResult(m.X, m.Y, res.Outcome == game.OutcomeHit, res.Sunk, pid)
		replies = []protocol.ServerMessage{shot}

		if res.Outcome == game.OutcomeRepeat {
			// Nothing changed; the opponent's view must not show a phantom
			// miss, so this is a direct reply only.
			return nil
		}

		h.publish(g, shot)
		if res.NowLocked {
			h.publish(g, protocol.NewWeaponsLocked())
		}

		if res.AllSunk || res.SuddenDeathWin {
			p, _ := g.PlayerByID(pid)
			reason := "AllShipsSunk"
			if res.SuddenDeathWin {
				reason = "SuddenDeath"
			}
			winner := pid
			h.publish(g, protocol.NewGameOver(&winner, reason,
				p.Stats.CellsHit, p.Stats.CellsMissed, p.Stats.ShipsSunk, p.Stats.ProblemsSolved))
			h.log.Info("match finished",
				zap.String("winner_id", pid.String()), zap.String("reason", reason))
		}
		return nil
	})
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	return replies
}

func (h *handler) handleSolveCheck(ctx context.Context, m protocol.SolveCheck) []protocol.ServerMessage {
	pid := h.player()
	if pid == uuid.Nil {
		return []protocol.ServerMessage{protocol.NewError("no player id; send JoinGame first")}
	}

	// Gate and stamp the attempt under the lock, then verify with the lock
	// released.
	var handle string
	err := h.deps.Registry.With(h.gameID, func(g *game.Game) error {
		var err error
		handle, err = g.BeginSolveCheck(pid)
		return err
	})
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}

	solved, err := h.deps.Verifier.VerifySolved(ctx, handle, m.ContestID, m.ProblemIndex)
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	if !solved {
		return []protocol.ServerMessage{protocol.NewError("submission not accepted")}
	}

	// Reacquire and re-validate: the match may have finished while the
	// verifier call was in flight.
	var replies []protocol.ServerMessage
	err = h.deps.Registry.With(h.gameID, func(g *game.Game) error {
		if err := g.CompleteSolve(pid); err != nil {
			return err
		}
		h.publish(g, protocol.NewWeaponsUnlocked("solved"))
		u, _ := g.Snapshot(pid)
		replies = []protocol.ServerMessage{updateFrame(u)}
		return nil
	})
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	return replies
}

func (h *handler) handleVeto() []protocol.ServerMessage {
	pid := h.player()
	if pid == uuid.Nil {
		return []protocol.ServerMessage{protocol.NewError("no player id; send JoinGame first")}
	}

	var replies []protocol.ServerMessage
	err := h.deps.Registry.With(h.gameID, func(g *game.Game) error {
		if _, err := g.StartVeto(pid); err != nil {
			return err
		}
		u, _ := g.Snapshot(pid)
		replies = []protocol.ServerMessage{updateFrame(u)}
		return nil
	})
	if err != nil {
		return []protocol.ServerMessage{protocol.NewError(errorText(err))}
	}
	return replies
}

// resyncReplies rebuilds a reconnecting player's full view: phase, clock,
// lock state, own fleet, and (mid-combat) both grids with the enemy's
// un-hit ships masked. Read-only by construction.
func resyncReplies(g *game.Game, pid uuid.UUID) []protocol.ServerMessage {
	msgs := []protocol.ServerMessage{joinedFrame(g, pid)}

	if u, ok := g.Snapshot(pid); ok {
		msgs = append(msgs, updateFrame(u))
	}

	p, ok := g.PlayerByID(pid)
	if !ok {
		return msgs
	}

	if p.FleetPlaced {
		msgs = append(msgs, protocol.NewShipsConfirmed(pid))
		if len(p.Fleet) > 0 {
			ships := make([]protocol.ShipPlacement, len(p.Fleet))
			for i, s := range p.Fleet {
				ships[i] = protocol.ShipPlacement{X: s.X, Y: s.Y, Size: s.Size, Vertical: s.Vertical}
			}
			msgs = append(msgs, protocol.NewYourShips(ships))
		}
	}

	if g.Phase == game.PhasePlaying || g.Phase == game.PhaseSuddenDeath {
		msgs = append(msgs, protocol.NewGameStart())

		emptyGrid := game.NewGrid()
		enemyGrid := emptyGrid.Rows()
		if enemy := g.Opponent(pid); enemy != nil {
			enemyGrid = enemy.Grid.MaskedRows()
		}
		msgs = append(msgs, protocol.NewGridSync(p.Grid.Rows(), enemyGrid))
	}
	return msgs
}

func joinedFrame(g *game.Game, pid uuid.UUID) protocol.GameJoined {
	return protocol.NewGameJoined(g.ID, pid,
		g.Config.Difficulty, g.Config.HeatThreshold, g.Config.MaxVetoes)
}

func updateFrame(u game.Update) protocol.GameUpdate {
	var vetoSecs *int64
	if u.VetoRemaining != nil {
		s := int64(u.VetoRemaining.Seconds())
		vetoSecs = &s
	}
	return protocol.NewGameUpdate(u.Status, u.Active, u.Heat, u.Locked,
		int64(u.Remaining.Seconds()), u.VetoesRemaining, vetoSecs)
}

// errorText maps taxonomy errors onto client-facing messages. Everything
// here is recovered at the offending request; nothing tears down the match.
func errorText(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return "game not found"
	case errors.Is(err, game.ErrGameOver):
		return "game has already ended"
	case errors.Is(err, game.ErrGameFull):
		return "game is full"
	case errors.Is(err, game.ErrSelfJoin):
		return "cannot play against yourself"
	case errors.Is(err, game.ErrNotInGame):
		return "not in game"
	case errors.Is(err, game.ErrInvalidState):
		return "action not allowed in the current phase"
	case errors.Is(err, game.ErrValidation):
		return "invalid ship placement or shot"
	case errors.Is(err, game.ErrLocked):
		return "weapons locked: solve a problem or use a veto"
	case errors.Is(err, game.ErrNotLocked):
		return "cannot use veto: weapons are not locked"
	case errors.Is(err, game.ErrNoVetoes):
		return "no vetoes remaining"
	case errors.Is(err, game.ErrVetoPending):
		return "a veto timer is active: wait it out"
	case errors.Is(err, game.ErrRateLimited):
		return "please wait before verifying again"
	case errors.Is(err, verify.ErrUnavailable):
		return "verification service unavailable"
	default:
		return err.Error()
	}
}
