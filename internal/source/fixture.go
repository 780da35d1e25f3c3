package source

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/propsight/prediction-api/internal/models"
)

//go:embed fixtures/sample.yaml
var sampleFixture []byte

// FixtureData is an offline data set in provider shape.
type FixtureData struct {
	Sports map[string]SportFixture `yaml:"sports"`
}

// SportFixture holds the payloads for one sport. Schedule entries may give
// either an absolute "scheduled" time or a "day_offset" from today plus an
// optional "start" time of day (HH:MM, UTC).
type SportFixture struct {
	Schedule    []map[string]any          `yaml:"schedule"`
	Teams       map[string]map[string]any `yaml:"teams"`
	PlayerStats map[string]map[string]any `yaml:"player_stats"`
	Summaries   map[string]map[string]any `yaml:"summaries"`
	Standings   map[string]any            `yaml:"standings"`
}

// FixtureSource is a DataSource over a FixtureData set. It is used when no
// provider API key is configured and in tests.
type FixtureSource struct {
	data FixtureData
	now  func() time.Time
}

// NewFixtureSource creates a source over data.
func NewFixtureSource(data FixtureData, now func() time.Time) *FixtureSource {
	if now == nil {
		now = time.Now
	}
	if data.Sports == nil {
		data.Sports = map[string]SportFixture{}
	}
	return &FixtureSource{data: data, now: now}
}

// ParseFixture decodes a YAML fixture document.
func ParseFixture(raw []byte) (FixtureData, error) {
	var data FixtureData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return FixtureData{}, fmt.Errorf("parse fixture: %w", err)
	}
	for sport, f := range data.Sports {
		f.Schedule = normalizeSlice(f.Schedule)
		f.Teams = normalizeMaps(f.Teams)
		f.PlayerStats = normalizeMaps(f.PlayerStats)
		f.Summaries = normalizeMaps(f.Summaries)
		if f.Standings != nil {
			f.Standings = normalize(f.Standings).(map[string]any)
		}
		data.Sports[sport] = f
	}
	return data, nil
}

// LoadFixtureFile reads a YAML fixture from disk.
func LoadFixtureFile(path string, now func() time.Time) (*FixtureSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	data, err := ParseFixture(raw)
	if err != nil {
		return nil, err
	}
	return NewFixtureSource(data, now), nil
}

// NewSampleSource returns a FixtureSource over the built-in sample data set.
func NewSampleSource(now func() time.Time) *FixtureSource {
	data, err := ParseFixture(sampleFixture)
	if err != nil {
		panic(err)
	}
	return NewFixtureSource(data, now)
}

// Sports lists the sports present in the fixture.
func (f *FixtureSource) Sports() []string {
	sports := make([]string, 0, len(f.data.Sports))
	for s := range f.data.Sports {
		sports = append(sports, s)
	}
	sort.Strings(sports)
	return sports
}

func (f *FixtureSource) UpcomingGames(ctx context.Context, sport string, days int) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days < 1 {
		days = 1
	}
	today := f.now().UTC().Truncate(24 * time.Hour)

	var games []map[string]any
	for _, entry := range f.data.Sports[sport].Schedule {
		game := make(map[string]any, len(entry)+1)
		for k, v := range entry {
			game[k] = v
		}
		if offset, ok := models.FlexInt(entry["day_offset"]); ok {
			if offset < 0 || offset >= days {
				continue
			}
			game["scheduled"] = today.AddDate(0, 0, offset).Add(startOfDay(entry["start"])).Format(time.RFC3339)
		}
		games = append(games, game)
	}
	return games, nil
}

func (f *FixtureSource) TeamRoster(ctx context.Context, sport, teamID string) (map[string]any, error) {
	return lookup(ctx, f.data.Sports[sport].Teams, teamID)
}

func (f *FixtureSource) PlayerStats(ctx context.Context, sport, playerID string) (map[string]any, error) {
	return lookup(ctx, f.data.Sports[sport].PlayerStats, playerID)
}

func (f *FixtureSource) GameSummary(ctx context.Context, sport, gameID string) (map[string]any, error) {
	return lookup(ctx, f.data.Sports[sport].Summaries, gameID)
}

func (f *FixtureSource) Standings(ctx context.Context, sport string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.data.Sports[sport].Standings, nil
}

func lookup(ctx context.Context, m map[string]map[string]any, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m[id]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// startOfDay parses "HH:MM" into an offset from midnight.
func startOfDay(v any) time.Duration {
	s := strings.TrimSpace(models.FlexString(v))
	if s == "" {
		return 0
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// normalize converts YAML-decoded values into the shapes encoding/json
// produces, so the Adapter sees one representation.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = normalize(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

func normalizeSlice(in []map[string]any) []map[string]any {
	out := make([]map[string]any, len(in))
	for i, m := range in {
		out[i] = normalize(m).(map[string]any)
	}
	return out
}

func normalizeMaps(in map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(in))
	for k, m := range in {
		out[k] = normalize(m).(map[string]any)
	}
	return out
}
