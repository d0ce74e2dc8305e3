package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/battlecp/battlecp-backend/internal/game"
	"github.com/battlecp/battlecp-backend/internal/registry"
	"github.com/battlecp/battlecp-backend/internal/verify"
)

// Verifier is the slice of the external collaborator the HTTP layer needs.
type Verifier interface {
	VerifyHandleExists(ctx context.Context, handle string) (bool, error)
	FetchContestProblems(ctx context.Context, contestID int) ([]verify.Problem, error)
}

type Deps struct {
	Registry *registry.Registry
	Verifier Verifier
	Log      *zap.Logger

	// WS is the upgrade handler mounted at /ws/{gameID}.
	WS http.HandlerFunc
}

type createGameRequest struct {
	Handle           string `json:"cf_handle"`
	Difficulty       int    `json:"difficulty"`
	HeatThreshold    int    `json:"heat_threshold"`
	GameDurationMins int    `json:"game_duration_mins"`
	VetoStrictness   string `json:"veto_strictness"` // "low", "medium", "high"
}

// CreateGame builds a new match for the requesting host. The handle must
// verify against Codeforces; an unreachable verifier rejects creation.
func CreateGame(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		handle := strings.TrimSpace(req.Handle)
		if handle == "" {
			writeError(w, http.StatusBadRequest, "cf_handle is required")
			return
		}

		exists, err := deps.Verifier.VerifyHandleExists(r.Context(), handle)
		if err != nil {
			deps.Log.Warn("handle verification unavailable", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "verification service unavailable")
			return
		}
		if !exists {
			writeError(w, http.StatusBadRequest, "Codeforces handle not found")
			return
		}

		cfg := game.BuildConfig(req.Difficulty, req.HeatThreshold, req.GameDurationMins, req.VetoStrictness)
		playerID := uuid.New()
		g := game.New(playerID, handle, cfg)
		gameID := deps.Registry.Create(g)

		deps.Log.Info("game created",
			zap.String("game_id", gameID.String()),
			zap.String("handle", handle))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			GameID   uuid.UUID `json:"game_id"`
			PlayerID uuid.UUID `json:"player_id"`
		}{GameID: gameID, PlayerID: playerID})
	}
}

// ContestProblems proxies a contest's problem list through the verifier's
// cache, for the client's problem picker.
func ContestProblems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contestID, err := strconv.Atoi(chi.URLParam(r, "contestID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad contest id")
			return
		}

		problems, err := deps.Verifier.FetchContestProblems(r.Context(), contestID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch contest problems")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Problems []verify.Problem `json:"problems"`
		}{Problems: problems})
	}
}

func Root(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("Battle CP Backend Online"))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}
