package models

import "time"

// Side identifies which roster a player belongs to in a game.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// RawTeam is a team reference as carried on a schedule entry.
type RawTeam struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// RawGame is an upcoming game as normalized from the upstream schedule.
type RawGame struct {
	ID        string    `json:"id"`
	Sport     string    `json:"sport"`
	Scheduled time.Time `json:"scheduled"`
	Home      RawTeam   `json:"home"`
	Away      RawTeam   `json:"away"`
	Venue     string    `json:"venue,omitempty"`
}

// RawPlayer is a roster snapshot for one pipeline run.
type RawPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TeamID    string `json:"team_id"`
	Position  string `json:"position,omitempty"`
	Age       int    `json:"age"`
	Height    int    `json:"height"` // inches
	Weight    int    `json:"weight"` // pounds
	IsStarter bool   `json:"is_starter"`
	IsHome    bool   `json:"is_home"`

	// Defaulted lists biometric/role fields that were missing upstream.
	Defaulted []string `json:"defaulted,omitempty"`
}

// GameRoster is a game with both rosters attached.
type GameRoster struct {
	Game RawGame     `json:"game"`
	Home []RawPlayer `json:"home_players"`
	Away []RawPlayer `json:"away_players"`
}

// CanonicalGameSet maps sport -> games with rosters.
type CanonicalGameSet map[string][]GameRoster

// GameCount returns the number of games across all sports.
func (s CanonicalGameSet) GameCount() int {
	n := 0
	for _, games := range s {
		n += len(games)
	}
	return n
}

// GameLine is one game's box-score line for a player.
type GameLine struct {
	GameID string             `json:"game_id"`
	Date   time.Time          `json:"date"`
	Stats  map[string]float64 `json:"stats"`
}

// StatHistory is everything known about a player's production this season.
type StatHistory struct {
	PlayerID       string             `json:"player_id"`
	SeasonAverages map[string]float64 `json:"season_averages"`
	// Games is ordered most recent first.
	Games []GameLine `json:"games"`
}

// OpponentRanks maps team id -> strength rank (1 = strongest).
type OpponentRanks map[string]int

// GameContext carries per-game inputs needed by the feature extractor.
type GameContext struct {
	Game           RawGame
	Side           Side
	OpponentTeamID string
	OpponentName   string
	TeamName       string
	// OpponentRank is 0 when standings were unavailable.
	OpponentRank int
}
