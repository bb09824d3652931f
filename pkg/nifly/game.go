package nifly

import (
	"fmt"
	"strings"
)

// Game identifies the title a model targets.
type Game string

const (
	GameSkyrim   Game = "SKYRIM"
	GameSkyrimSE Game = "SKYRIMSE"
	GameFO4      Game = "FO4"
	GameFO76     Game = "FO76"
	GameFO3      Game = "FO3" // also Fallout New Vegas
)

// Games lists every known game in menu order.
var Games = []Game{GameSkyrim, GameSkyrimSE, GameFO4, GameFO76, GameFO3}

// ParseGame parses a game tag, case-insensitively.
func ParseGame(s string) (Game, error) {
	g := Game(strings.ToUpper(strings.TrimSpace(s)))
	if g == "FONV" {
		return GameFO3, nil
	}
	if !g.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownGame, s)
	}
	return g, nil
}

// Known reports whether g is one of Games.
func (g Game) Known() bool {
	for _, known := range Games {
		if g == known {
			return true
		}
	}
	return false
}

// HasSegments reports whether the game partitions meshes into segments
// rather than body parts.
func (g Game) HasSegments() bool {
	return g == GameFO4 || g == GameFO76
}

func (g Game) String() string {
	return string(g)
}
