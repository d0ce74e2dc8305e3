package game

import "errors"

var (
	ErrGameOver     = errors.New("game has already ended")
	ErrGameFull     = errors.New("game is full")
	ErrSelfJoin     = errors.New("cannot play against yourself")
	ErrNotInGame    = errors.New("player is not in this game")
	ErrInvalidState = errors.New("action is not legal in the current phase")
	ErrValidation   = errors.New("validation failed")
	ErrLocked       = errors.New("weapons are locked")
	ErrNotLocked    = errors.New("weapons are not locked")
	ErrNoVetoes     = errors.New("no vetoes remaining")
	ErrVetoPending  = errors.New("a veto timer is already running")
	ErrRateLimited  = errors.New("verification attempted too soon")
)
