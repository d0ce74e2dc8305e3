// Package protocol defines the socket wire format: a closed set of tagged
// JSON messages in each direction. Unknown inbound discriminants are
// rejected at decode time, never silently ignored.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrUnknownType = errors.New("unknown message type")

type ShipPlacement struct {
	X        int  `json:"x"`
	Y        int  `json:"y"`
	Size     int  `json:"size"`
	Vertical bool `json:"vertical"`
}

// --- Client -> Server ---

type ClientMessage interface{ isClientMessage() }

type JoinGame struct {
	PlayerID uuid.UUID `json:"player_id"`
	Handle   string    `json:"cf_handle"`
}

type PlaceShips struct {
	Ships []ShipPlacement `json:"ships"`
}

type Fire struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type SolveCheck struct {
	ContestID    int    `json:"contest_id"`
	ProblemIndex string `json:"problem_index"`
}

type Veto struct{}

func (JoinGame) isClientMessage()   {}
func (PlaceShips) isClientMessage() {}
func (Fire) isClientMessage()       {}
func (SolveCheck) isClientMessage() {}
func (Veto) isClientMessage()       {}

// DecodeClient parses one inbound frame. The envelope's "type" field selects
// the variant; anything outside the closed set fails with ErrUnknownType.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "JoinGame":
		var m JoinGame
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "PlaceShips":
		var m PlaceShips
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "Fire":
		var m Fire
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "SolveCheck":
		var m SolveCheck
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "Veto":
		return Veto{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Kind names the variant for logging and metrics labels.
func Kind(m ClientMessage) string {
	switch m.(type) {
	case JoinGame:
		return "JoinGame"
	case PlaceShips:
		return "PlaceShips"
	case Fire:
		return "Fire"
	case SolveCheck:
		return "SolveCheck"
	case Veto:
		return "Veto"
	default:
		return "unknown"
	}
}

// --- Server -> Client ---

// ServerMessage is the closed set of outbound frames. Construct values with
// the New* helpers so the type tag is always present.
type ServerMessage interface{ isServerMessage() }

type GameJoined struct {
	Type       string    `json:"type"`
	GameID     uuid.UUID `json:"game_id"`
	PlayerID   uuid.UUID `json:"player_id"`
	Difficulty int       `json:"difficulty"`
	MaxHeat    int       `json:"max_heat"`
	MaxVetoes  int       `json:"max_vetoes"`
}

type PlayerJoined struct {
	Type     string    `json:"type"`
	PlayerID uuid.UUID `json:"player_id"`
}

type ShipsConfirmed struct {
	Type     string    `json:"type"`
	PlayerID uuid.UUID `json:"player_id"`
}

type GameStart struct {
	Type string `json:"type"`
}

type GameUpdate struct {
	Type                  string `json:"type"`
	Status                string `json:"status"`
	IsActive              bool   `json:"is_active"`
	Heat                  int    `json:"heat"`
	IsLocked              bool   `json:"is_locked"`
	TimeRemainingSecs     int64  `json:"time_remaining_secs"`
	VetoesRemaining       int    `json:"vetoes_remaining"`
	VetoTimeRemainingSecs *int64 `json:"veto_time_remaining_secs,omitempty"`
}

type ShotResult struct {
	Type      string    `json:"type"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Hit       bool      `json:"hit"`
	Sunk      bool      `json:"sunk"`
	ShooterID uuid.UUID `json:"shooter_id"`
}

type WeaponsLocked struct {
	Type string `json:"type"`
}

type WeaponsUnlocked struct {
	Type   string `json:"type"`
	Reason string `json:"reason"` // "solved" or "veto_expired"
}

type GameOver struct {
	Type               string     `json:"type"`
	WinnerID           *uuid.UUID `json:"winner_id,omitempty"`
	Reason             string     `json:"reason"`
	YourShotsHit       int        `json:"your_shots_hit"`
	YourShotsMissed    int        `json:"your_shots_missed"`
	YourShipsSunk      int        `json:"your_ships_sunk"`
	YourProblemsSolved int        `json:"your_problems_solved"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Reconnection-only resync payloads.

type YourShips struct {
	Type  string          `json:"type"`
	Ships []ShipPlacement `json:"ships"`
}

type GridSync struct {
	Type      string     `json:"type"`
	MyGrid    [][]string `json:"my_grid"`
	EnemyGrid [][]string `json:"enemy_grid"`
}

func (GameJoined) isServerMessage()      {}
func (PlayerJoined) isServerMessage()    {}
func (ShipsConfirmed) isServerMessage()  {}
func (GameStart) isServerMessage()       {}
func (GameUpdate) isServerMessage()      {}
func (ShotResult) isServerMessage()      {}
func (WeaponsLocked) isServerMessage()   {}
func (WeaponsUnlocked) isServerMessage() {}
func (GameOver) isServerMessage()        {}
func (ErrorMsg) isServerMessage()        {}
func (YourShips) isServerMessage()       {}
func (GridSync) isServerMessage()        {}

func NewGameJoined(gameID, playerID uuid.UUID, difficulty, maxHeat, maxVetoes int) GameJoined {
	return GameJoined{Type: "GameJoined", GameID: gameID, PlayerID: playerID,
		Difficulty: difficulty, MaxHeat: maxHeat, MaxVetoes: maxVetoes}
}

func NewPlayerJoined(playerID uuid.UUID) PlayerJoined {
	return PlayerJoined{Type: "PlayerJoined", PlayerID: playerID}
}

func NewShipsConfirmed(playerID uuid.UUID) ShipsConfirmed {
	return ShipsConfirmed{Type: "ShipsConfirmed", PlayerID: playerID}
}

func NewGameStart() GameStart {
	return GameStart{Type: "GameStart"}
}

func NewGameUpdate(status string, active bool, heat int, locked bool, remainingSecs int64, vetoesRemaining int, vetoRemainingSecs *int64) GameUpdate {
	return GameUpdate{Type: "GameUpdate", Status: status, IsActive: active,
		Heat: heat, IsLocked: locked, TimeRemainingSecs: remainingSecs,
		VetoesRemaining: vetoesRemaining, VetoTimeRemainingSecs: vetoRemainingSecs}
}

func NewShotResult(x, y int, hit, sunk bool, shooterID uuid.UUID) ShotResult {
	return ShotResult{Type: "ShotResult", X: x, Y: y, Hit: hit, Sunk: sunk, ShooterID: shooterID}
}

func NewWeaponsLocked() WeaponsLocked {
	return WeaponsLocked{Type: "WeaponsLocked"}
}

func NewWeaponsUnlocked(reason string) WeaponsUnlocked {
	return WeaponsUnlocked{Type: "WeaponsUnlocked", Reason: reason}
}

func NewGameOver(winnerID *uuid.UUID, reason string, hit, missed, sunk, solved int) GameOver {
	return GameOver{Type: "GameOver", WinnerID: winnerID, Reason: reason,
		YourShotsHit: hit, YourShotsMissed: missed, YourShipsSunk: sunk, YourProblemsSolved: solved}
}

func NewError(message string) ErrorMsg {
	return ErrorMsg{Type: "Error", Message: message}
}

func NewYourShips(ships []ShipPlacement) YourShips {
	return YourShips{Type: "YourShips", Ships: ships}
}

func NewGridSync(myGrid, enemyGrid [][]string) GridSync {
	return GridSync{Type: "GridSync", MyGrid: myGrid, EnemyGrid: enemyGrid}
}

// Encode marshals one outbound frame.
func Encode(m ServerMessage) ([]byte, error) {
	return json.Marshal(m)
}
