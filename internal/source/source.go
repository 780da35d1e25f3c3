// Package source fetches raw sports data and normalizes it into the
// canonical model. DataSource implementations return provider payloads as
// decoded JSON objects; Adapter turns them into games, rosters, stat
// histories, opponent ranks and actual results.
package source

import (
	"context"
	"time"
)

// DataSource is the upstream sports data provider.
// A resource the provider does not have yields nil, nil. Any returned error
// is a transport or decoding failure.
type DataSource interface {
	// UpcomingGames returns schedule entries for today and the following
	// days-1 days.
	UpcomingGames(ctx context.Context, sport string, days int) ([]map[string]any, error)
	TeamRoster(ctx context.Context, sport, teamID string) (map[string]any, error)
	PlayerStats(ctx context.Context, sport, playerID string) (map[string]any, error)
	GameSummary(ctx context.Context, sport, gameID string) (map[string]any, error)
	Standings(ctx context.Context, sport string) (map[string]any, error)
}

// Cache stores raw provider responses.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
