// Package ws runs one handler per socket: it subscribes to the match's
// fanout, translates inbound frames into registry operations, and relays
// outbound events.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/battlecp/battlecp-backend/internal/fanout"
	"github.com/battlecp/battlecp-backend/internal/game"
	"github.com/battlecp/battlecp-backend/internal/metrics"
	"github.com/battlecp/battlecp-backend/internal/protocol"
	"github.com/battlecp/battlecp-backend/internal/registry"
)

const writeTimeout = 3 * time.Second

// Verifier is the slice of the external collaborator the socket layer needs.
type Verifier interface {
	VerifyHandleExists(ctx context.Context, handle string) (bool, error)
	VerifySolved(ctx context.Context, handle string, contestID int, index string) (bool, error)
}

type Deps struct {
	Registry *registry.Registry
	Verifier Verifier
	Log      *zap.Logger
}

func Handler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := uuid.Parse(chi.URLParam(r, "gameID"))
		if err != nil {
			http.Error(w, "bad game id", http.StatusBadRequest)
			return
		}
		if !deps.Registry.Exists(gameID) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// Subscribe before reading anything so no broadcast is missed
		// between attach and the first read.
		var events <-chan fanout.Event
		var unsubscribe func()
		err = deps.Registry.View(gameID, func(g *game.Game) error {
			events, unsubscribe = g.Events.Subscribe()
			return nil
		})
		if err != nil {
			// Removed between Exists and here; the race is benign.
			return
		}
		defer unsubscribe()

		h := &handler{
			deps:   deps,
			conn:   conn,
			gameID: gameID,
			log:    deps.Log.With(zap.String("game_id", gameID.String())),
		}
		h.run(r.Context(), events)
	}
}

type handler struct {
	deps   Deps
	conn   *websocket.Conn
	gameID uuid.UUID
	log    *zap.Logger

	mu       sync.Mutex
	playerID uuid.UUID // uuid.Nil until a JoinGame binds this socket
}

func (h *handler) player() uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playerID
}

func (h *handler) bindPlayer(id uuid.UUID) {
	h.mu.Lock()
	h.playerID = id
	h.mu.Unlock()
}

func (h *handler) run(parent context.Context, events <-chan fanout.Event) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Relay goroutine: fanout -> socket. Cancelling ctx on exit aborts the
	// blocked read below, so a closed fanout tears the whole handler down.
	go func() {
		defer cancel()
		h.relay(ctx, events)
	}()

	for {
		_, data, err := h.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				h.log.Debug("read ended", zap.Error(err))
			}
			return
		}

		msg, err := protocol.DecodeClient(data)
		if err != nil {
			h.log.Warn("bad inbound frame", zap.Error(err))
			if h.send(ctx, protocol.NewError("malformed message")) != nil {
				return
			}
			continue
		}
		metrics.InboundMessages.WithLabelValues(protocol.Kind(msg)).Inc()

		for _, reply := range h.dispatch(ctx, msg) {
			if h.send(ctx, reply) != nil {
				return
			}
		}
	}
}

func (h *handler) relay(ctx context.Context, events <-chan fanout.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Match removed from the registry; close gracefully.
				h.log.Debug("fanout closed, ending connection")
				return
			}
			switch e := ev.(type) {
			case fanout.Tick:
				if err := h.pushSnapshot(ctx); err != nil {
					return
				}
			case fanout.Broadcast:
				if err := h.send(ctx, e.Msg); err != nil {
					return
				}
			}
		}
	}
}

// pushSnapshot recomputes this player's personalized view and sends it.
// Unbound sockets (no JoinGame yet) skip ticks.
func (h *handler) pushSnapshot(ctx context.Context) error {
	pid := h.player()
	if pid == uuid.Nil {
		return nil
	}

	var frame protocol.GameUpdate
	have := false
	err := h.deps.Registry.View(h.gameID, func(g *game.Game) error {
		if u, ok := g.Snapshot(pid); ok {
			frame = updateFrame(u)
			have = true
		}
		return nil
	})
	if err != nil || !have {
		return nil
	}
	return h.send(ctx, frame)
}

func (h *handler) send(ctx context.Context, msg protocol.ServerMessage) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		h.log.Error("encode failed", zap.Error(err))
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return h.conn.Write(wctx, websocket.MessageText, payload)
}

// publish broadcasts through the match fanout; called only inside registry
// critical sections. Lagging subscribers skip events rather than dying.
func (h *handler) publish(g *game.Game, msg protocol.ServerMessage) {
	if n := g.Events.Publish(fanout.Broadcast{Msg: msg}); n > 0 {
		metrics.FanoutDropped.Add(float64(n))
		h.log.Warn("fanout subscribers lagged", zap.Int("dropped", n))
	}
}
