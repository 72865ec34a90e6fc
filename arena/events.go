package arena

import (
	"encoding/json"
	"strings"

	"github.com/brensch/snekarena/game"
)

// Inbound event types.
const (
	EventCreateGame       = "createGame"
	EventJoinGame         = "joinGame"
	EventStartGame        = "startGame"
	EventChangeDirection  = "changeDirection"
	EventRequestGameState = "requestGameState"
)

// Outbound event types.
const (
	EventConnected        = "connected"
	EventGameCreated      = "gameCreated"
	EventGameState        = "gameState"
	EventPlayerJoined     = "playerJoined"
	EventPlayerLeft       = "playerLeft"
	EventGameStarted      = "gameStarted"
	EventDirectionChanged = "directionChanged"
	EventGameOver         = "gameOver"
	EventError            = "error"
)

// Event is one named message with its payload. It is also the wire envelope:
// {"type": ..., "data": ...}.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// InboundEvent is an envelope received from a client. Data is decoded by the
// handler for Type.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Payloads.

type GameCreated struct {
	GameID string `json:"gameId"`
}

type PlayerJoined struct {
	Player  *game.Player            `json:"player"`
	Players map[string]*game.Player `json:"players"`
}

type PlayerLeft struct {
	PlayerID string                  `json:"playerId"`
	Players  map[string]*game.Player `json:"players"`
}

type DirectionChanged struct {
	PlayerID  string         `json:"playerId"`
	Direction game.Direction `json:"direction"`
}

// GameOver carries the round winner; Winner is null on a draw.
type GameOver struct {
	Winner *game.Player `json:"winner"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type Connected struct {
	ID string `json:"id"`
}

type joinRequest struct {
	GameID     string `json:"gameId"`
	PlayerName string `json:"playerName"`
}

type createRequest struct {
	PlayerName string `json:"playerName"`
}

type directionRequest struct {
	Direction string `json:"direction"`
}

// decodeLoose accepts either a bare JSON string (stored into *str) or an
// object decoded into v. Older clients send bare strings for single-field
// payloads.
func decodeLoose(data json.RawMessage, str *string, v any) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(data, str)
	}
	return json.Unmarshal(data, v)
}
