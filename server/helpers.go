package server

import (
	"encoding/json"
	"net/http"

	"github.com/brensch/snekarena/arena"
)

// GameResponse answers a share-link lookup.
type GameResponse struct {
	GameID  string `json:"gameId"`
	Created bool   `json:"created"`
}

type SessionsResponse struct {
	Total       int                    `json:"total"`
	Connections int                    `json:"connections"`
	Sessions    []arena.SessionSummary `json:"sessions"`
}

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
