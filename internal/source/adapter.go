package source

import (
	"sort"
	"strings"
	"time"

	"github.com/propsight/prediction-api/internal/models"
)

// Defaults for roster fields the provider leaves out.
const (
	DefaultAge    = 25
	DefaultHeight = 72  // inches
	DefaultWeight = 200 // pounds
)

// StatNamer maps a provider statistic key to the canonical statistic name
// for a sport. features.Catalog.Canonical satisfies it.
type StatNamer func(sport, key string) (string, bool)

// AdaptStats counts what an adaptation dropped or patched.
type AdaptStats struct {
	Games          int
	Players        int
	DroppedGames   int
	DroppedPlayers int
	// Defaulted counts players with at least one defaulted field.
	Defaulted int
}

// Adapter normalizes provider payloads into the canonical model. It performs
// no I/O; a malformed record degrades to defaults or is dropped on its own.
type Adapter struct {
	canonical StatNamer
}

// NewAdapter creates an adapter. A nil namer keeps provider statistic keys.
func NewAdapter(canonical StatNamer) *Adapter {
	return &Adapter{canonical: canonical}
}

// AdaptSchedule builds the canonical game set for one sport from schedule
// entries and team profiles keyed by team id. Games without an id or a
// parseable scheduled time are dropped; a game whose rosters are missing is
// kept with empty rosters.
func (a *Adapter) AdaptSchedule(sport string, games []map[string]any, rosters map[string]map[string]any) (models.CanonicalGameSet, AdaptStats) {
	set := models.CanonicalGameSet{}
	var stats AdaptStats

	for _, raw := range games {
		game, ok := adaptGame(sport, raw)
		if !ok {
			stats.DroppedGames++
			continue
		}
		gr := models.GameRoster{Game: game}
		gr.Home = a.adaptRoster(rosters[game.Home.ID], game.Home.ID, true, game.Scheduled, &stats)
		gr.Away = a.adaptRoster(rosters[game.Away.ID], game.Away.ID, false, game.Scheduled, &stats)
		if name := models.FlexString(rosters[game.Home.ID]["name"]); name != "" && game.Home.Name == "" {
			gr.Game.Home.Name = name
		}
		if name := models.FlexString(rosters[game.Away.ID]["name"]); name != "" && game.Away.Name == "" {
			gr.Game.Away.Name = name
		}
		set[sport] = append(set[sport], gr)
		stats.Games++
	}

	sort.SliceStable(set[sport], func(i, j int) bool {
		gi, gj := set[sport][i].Game, set[sport][j].Game
		if !gi.Scheduled.Equal(gj.Scheduled) {
			return gi.Scheduled.Before(gj.Scheduled)
		}
		return gi.ID < gj.ID
	})
	return set, stats
}

func adaptGame(sport string, raw map[string]any) (models.RawGame, bool) {
	id := models.FlexString(raw["id"])
	if id == "" {
		return models.RawGame{}, false
	}
	scheduled, ok := parseTime(raw["scheduled"])
	if !ok {
		return models.RawGame{}, false
	}
	home := adaptTeam(models.FlexMap(raw["home"]))
	away := adaptTeam(models.FlexMap(raw["away"]))
	if home.ID == "" || away.ID == "" {
		return models.RawGame{}, false
	}

	venue := models.FlexString(models.FlexMap(raw["venue"])["name"])
	if venue == "" {
		venue = models.FlexString(raw["venue"])
	}
	return models.RawGame{
		ID:        id,
		Sport:     sport,
		Scheduled: scheduled.UTC(),
		Home:      home,
		Away:      away,
		Venue:     venue,
	}, true
}

func adaptTeam(raw map[string]any) models.RawTeam {
	name := models.FlexString(raw["name"])
	if market := models.FlexString(raw["market"]); market != "" && name != "" {
		name = market + " " + name
	}
	return models.RawTeam{
		ID:    models.FlexString(raw["id"]),
		Name:  name,
		Alias: models.FlexString(raw["alias"]),
	}
}

func (a *Adapter) adaptRoster(profile map[string]any, teamID string, home bool, scheduled time.Time, stats *AdaptStats) []models.RawPlayer {
	var players []models.RawPlayer
	for _, entry := range models.FlexSlice(profile["players"]) {
		p, ok := adaptPlayer(models.FlexMap(entry), teamID, home, scheduled)
		if !ok {
			stats.DroppedPlayers++
			continue
		}
		if len(p.Defaulted) > 0 {
			stats.Defaulted++
		}
		stats.Players++
		players = append(players, p)
	}
	return players
}

// adaptPlayer normalizes one roster entry. Only a missing id drops the player.
func adaptPlayer(raw map[string]any, teamID string, home bool, scheduled time.Time) (models.RawPlayer, bool) {
	id := models.FlexString(raw["id"])
	if id == "" {
		return models.RawPlayer{}, false
	}

	p := models.RawPlayer{
		ID:       id,
		Name:     playerName(raw, id),
		TeamID:   teamID,
		Position: firstString(raw, "primary_position", "position"),
		IsHome:   home,
	}

	if age, ok := playerAge(raw, scheduled); ok {
		p.Age = age
	} else {
		p.Age = DefaultAge
		p.Defaulted = append(p.Defaulted, "age")
	}
	if h, ok := models.FlexInt(raw["height"]); ok && h > 0 {
		p.Height = h
	} else {
		p.Height = DefaultHeight
		p.Defaulted = append(p.Defaulted, "height")
	}
	if w, ok := models.FlexInt(raw["weight"]); ok && w > 0 {
		p.Weight = w
	} else {
		p.Weight = DefaultWeight
		p.Defaulted = append(p.Defaulted, "weight")
	}
	if starter, ok := models.FlexBool(raw["starter"]); ok {
		p.IsStarter = starter
	} else if starter, ok := models.FlexBool(raw["is_starter"]); ok {
		p.IsStarter = starter
	} else {
		p.IsStarter = true
		p.Defaulted = append(p.Defaulted, "is_starter")
	}
	return p, true
}

func playerName(raw map[string]any, id string) string {
	if full := models.FlexString(raw["full_name"]); full != "" {
		return full
	}
	name := strings.TrimSpace(models.FlexString(raw["first_name"]) + " " + models.FlexString(raw["last_name"]))
	if name == "" {
		name = models.FlexString(raw["name"])
	}
	if name == "" {
		return id
	}
	return name
}

// playerAge prefers an explicit age, then derives one from the birth date as
// of the game date.
func playerAge(raw map[string]any, asOf time.Time) (int, bool) {
	if age, ok := models.FlexInt(raw["age"]); ok && age > 0 {
		return age, true
	}
	for _, key := range []string{"birthdate", "birth_date"} {
		born, ok := parseTime(raw[key])
		if !ok || asOf.IsZero() || born.After(asOf) {
			continue
		}
		age := asOf.Year() - born.Year()
		if asOf.YearDay() < born.YearDay() {
			age--
		}
		if age > 0 {
			return age, true
		}
	}
	return 0, false
}

// AdaptPlayerStats extracts season averages and, when present, a game log
// (most recent first) from a player statistics payload. Nested groups are
// flattened with dotted keys such as "passing.yards".
func (a *Adapter) AdaptPlayerStats(sport, playerID string, raw map[string]any) *models.StatHistory {
	h := &models.StatHistory{
		PlayerID:       playerID,
		SeasonAverages: map[string]float64{},
	}
	if raw == nil {
		return h
	}

	if avg := models.FlexMap(raw["average"]); avg != nil {
		flatten("", avg, h.SeasonAverages)
	}
	for _, season := range models.FlexSlice(raw["seasons"]) {
		for _, team := range models.FlexSlice(models.FlexMap(season)["teams"]) {
			flatten("", models.FlexMap(models.FlexMap(team)["average"]), h.SeasonAverages)
		}
	}

	for _, entry := range models.FlexSlice(raw["games"]) {
		g := models.FlexMap(entry)
		date, ok := parseTime(firstValue(g, "scheduled", "date"))
		if !ok {
			continue
		}
		line := models.GameLine{
			GameID: models.FlexString(g["id"]),
			Date:   date.UTC(),
			Stats:  map[string]float64{},
		}
		flatten("", models.FlexMap(firstValue(g, "statistics", "stats")), line.Stats)
		h.Games = append(h.Games, line)
	}
	sort.SliceStable(h.Games, func(i, j int) bool {
		return h.Games[i].Date.After(h.Games[j].Date)
	})
	return h
}

// AdaptStandings ranks teams by win percentage, best first. Ties break on
// wins, then team id.
func (a *Adapter) AdaptStandings(raw map[string]any) models.OpponentRanks {
	type record struct {
		id   string
		pct  float64
		wins float64
	}
	seen := map[string]bool{}
	var teams []record
	walkTeams(raw, func(t map[string]any) {
		id := models.FlexString(t["id"])
		if id == "" || seen[id] {
			return
		}
		wins, _ := models.FlexFloat(t["wins"])
		losses, _ := models.FlexFloat(t["losses"])
		pct, ok := models.FlexFloat(t["win_pct"])
		if !ok && wins+losses > 0 {
			pct = wins / (wins + losses)
		}
		seen[id] = true
		teams = append(teams, record{id: id, pct: pct, wins: wins})
	})

	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].pct != teams[j].pct {
			return teams[i].pct > teams[j].pct
		}
		if teams[i].wins != teams[j].wins {
			return teams[i].wins > teams[j].wins
		}
		return teams[i].id < teams[j].id
	})

	ranks := make(models.OpponentRanks, len(teams))
	for i, t := range teams {
		ranks[t.id] = i + 1
	}
	return ranks
}

// walkTeams visits every object under a "teams" array at any depth.
func walkTeams(v any, visit func(map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			if key == "teams" {
				for _, team := range models.FlexSlice(child) {
					if m := models.FlexMap(team); m != nil {
						visit(m)
					}
				}
				continue
			}
			walkTeams(child, visit)
		}
	case []any:
		for _, child := range t {
			walkTeams(child, visit)
		}
	}
}

// finalStatuses are the summary statuses after which box scores are final.
var finalStatuses = map[string]bool{"closed": true, "complete": true, "completed": true, "final": true}

// AdaptGameSummary turns a final box score into actual results, one per
// player and catalog statistic. A summary for a game still in progress yields
// nothing. Statistics the namer does not recognise are ignored.
func (a *Adapter) AdaptGameSummary(sport string, raw map[string]any) []models.ActualResult {
	if raw == nil {
		return nil
	}
	if status := strings.ToLower(models.FlexString(raw["status"])); status != "" && !finalStatuses[status] {
		return nil
	}
	gameID := models.FlexString(raw["id"])
	if gameID == "" {
		return nil
	}

	var out []models.ActualResult
	seen := map[models.PredictionKey]bool{}
	for _, side := range []string{"home", "away"} {
		team := models.FlexMap(raw[side])
		for _, entry := range models.FlexSlice(team["players"]) {
			player := models.FlexMap(entry)
			id := models.FlexString(player["id"])
			if id == "" {
				continue
			}
			flat := map[string]float64{}
			flatten("", models.FlexMap(player["statistics"]), flat)

			keys := make([]string, 0, len(flat))
			for k := range flat {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				stat := k
				if a.canonical != nil {
					name, ok := a.canonical(sport, k)
					if !ok {
						continue
					}
					stat = name
				}
				key := models.PredictionKey{PlayerID: id, GameID: gameID, StatType: stat}
				if seen[key] || flat[k] < 0 {
					continue
				}
				seen[key] = true
				out = append(out, models.ActualResult{
					PlayerID:    id,
					PlayerName:  playerName(player, id),
					GameID:      gameID,
					Sport:       sport,
					StatType:    stat,
					ActualValue: flat[k],
				})
			}
		}
	}
	return out
}

// flatten copies numeric leaves of src into dst, joining nested keys with dots.
func flatten(prefix string, src map[string]any, dst map[string]float64) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m := models.FlexMap(v); m != nil {
			flatten(key, m, dst)
			continue
		}
		if f, ok := models.FlexFloat(v); ok {
			dst[key] = f
		}
	}
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := models.FlexString(m[k]); s != "" {
			return s
		}
	}
	return ""
}
