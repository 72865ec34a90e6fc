package game

import (
	"math/rand"
	"strings"
	"time"
)

// Palette is the rotating set of player colors.
var Palette = []string{
	"#FF5733", "#33FF57", "#3357FF", "#F3FF33",
	"#FF33F3", "#33FFF3", "#F333FF", "#33FF33",
}

// ColorFor returns the palette color for the n-th player to join.
func ColorFor(playerCount int) string {
	if playerCount < 0 {
		playerCount = 0
	}
	return Palette[playerCount%len(Palette)]
}

const (
	sessionIDLen      = 6
	sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewSessionID returns a short base36 identifier suitable for share links.
func NewSessionID(rng *rand.Rand) string {
	if rng == nil {
		rng = newRand()
	}
	var sb strings.Builder
	sb.Grow(sessionIDLen)
	for i := 0; i < sessionIDLen; i++ {
		sb.WriteByte(sessionIDAlphabet[rng.Intn(len(sessionIDAlphabet))])
	}
	return sb.String()
}

// DefaultPlayerName derives a display name from the connection id.
func DefaultPlayerName(connID string) string {
	short := connID
	if len(short) > 4 {
		short = short[:4]
	}
	return "player_" + short
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
