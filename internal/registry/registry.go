// Package registry owns the shared map of live games. It is the single
// point of concurrent access: all game and player mutation happens inside a
// closure passed to one of its accessors, never through a retained pointer.
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/battlecp/battlecp-backend/internal/game"
	"github.com/battlecp/battlecp-backend/internal/metrics"
)

var ErrNotFound = errors.New("game not found")

type Registry struct {
	mu    sync.RWMutex
	games map[uuid.UUID]*game.Game
}

func New() *Registry {
	return &Registry{games: make(map[uuid.UUID]*game.Game)}
}

// Create inserts a freshly constructed game and returns its id.
func (r *Registry) Create(g *game.Game) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.ID] = g
	metrics.LiveGames.Set(float64(len(r.games)))
	return g.ID
}

// With runs fn on the game under the exclusive lock. fn must not block on
// anything slow; external calls happen before or after, never inside.
func (r *Registry) With(id uuid.UUID, fn func(*game.Game) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return ErrNotFound
	}
	return fn(g)
}

// View runs fn on the game under the shared lock; fn must not mutate.
func (r *Registry) View(id uuid.UUID, fn func(*game.Game) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	if !ok {
		return ErrNotFound
	}
	return fn(g)
}

// Exists is the read-mostly status query used by the socket upgrade path.
func (r *Registry) Exists(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.games[id]
	return ok
}

// Sweep runs fn over every game under the exclusive lock, then deletes the
// ids fn asked to prune, closing each pruned game's fanout so its handlers
// terminate. The whole pass is one critical section.
func (r *Registry) Sweep(fn func(id uuid.UUID, g *game.Game) (prune bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, g := range r.games {
		if fn(id, g) {
			delete(r.games, id)
			g.Events.Close()
		}
	}
	metrics.LiveGames.Set(float64(len(r.games)))
}

// Remove deletes one game and closes its fanout. Only the sweeper and tests
// call this; handlers never delete games.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return
	}
	delete(r.games, id)
	g.Events.Close()
	metrics.LiveGames.Set(float64(len(r.games)))
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
