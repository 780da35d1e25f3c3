package features

import "sort"

// StatDef describes one predictable statistic for a sport.
type StatDef struct {
	Name string
	// LeagueMean is the sport-wide per-game mean, used as the neutral baseline
	// and as the season average when a player has no history.
	LeagueMean float64
	// Aliases are upstream box-score keys that carry the same statistic.
	Aliases []string
}

// SportDef describes a supported sport.
type SportDef struct {
	Code       string
	LeagueSize int
	Stats      []StatDef
}

// Catalog is the set of supported sports keyed by code.
type Catalog map[string]SportDef

// DefaultCatalog covers the leagues the upstream feed serves.
func DefaultCatalog() Catalog {
	basketball := func(code string, size int, points, rebounds, assists, threes float64) SportDef {
		return SportDef{Code: code, LeagueSize: size, Stats: []StatDef{
			{Name: "points", LeagueMean: points},
			{Name: "rebounds", LeagueMean: rebounds},
			{Name: "assists", LeagueMean: assists},
			{Name: "three_pointers", LeagueMean: threes, Aliases: []string{"three_points_made"}},
		}}
	}
	football := func(code string, size int, pass, rush, rec, tds float64) SportDef {
		return SportDef{Code: code, LeagueSize: size, Stats: []StatDef{
			{Name: "passing_yards", LeagueMean: pass, Aliases: []string{"passing.yards"}},
			{Name: "rushing_yards", LeagueMean: rush, Aliases: []string{"rushing.yards"}},
			{Name: "receiving_yards", LeagueMean: rec, Aliases: []string{"receiving.yards"}},
			{Name: "touchdowns", LeagueMean: tds, Aliases: []string{"total_touchdowns"}},
		}}
	}

	return Catalog{
		"nba":    basketball("nba", 30, 15.5, 6.2, 4.1, 1.8),
		"ncaamb": basketball("ncaamb", 362, 12.5, 5.2, 3.1, 1.5),
		"nfl":    football("nfl", 32, 220.5, 45.2, 65.3, 0.8),
		"ncaafb": football("ncaafb", 134, 180.5, 40.2, 55.3, 0.6),
		"mlb": {Code: "mlb", LeagueSize: 30, Stats: []StatDef{
			{Name: "hits", LeagueMean: 1.2, Aliases: []string{"h"}},
			{Name: "runs", LeagueMean: 0.7, Aliases: []string{"r"}},
			{Name: "rbis", LeagueMean: 0.8, Aliases: []string{"rbi"}},
			{Name: "strikeouts", LeagueMean: 1.5, Aliases: []string{"ktotal", "so"}},
		}},
		"nhl": {Code: "nhl", LeagueSize: 32, Stats: []StatDef{
			{Name: "goals", LeagueMean: 0.4},
			{Name: "assists", LeagueMean: 0.6},
			{Name: "shots", LeagueMean: 2.5, Aliases: []string{"shots_on_goal"}},
			{Name: "saves", LeagueMean: 25.5},
		}},
	}
}

// Sports returns the sport codes in sorted order.
func (c Catalog) Sports() []string {
	codes := make([]string, 0, len(c))
	for code := range c {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Stat looks up a statistic definition.
func (c Catalog) Stat(sport, stat string) (StatDef, bool) {
	def, ok := c[sport]
	if !ok {
		return StatDef{}, false
	}
	for _, s := range def.Stats {
		if s.Name == stat {
			return s, true
		}
	}
	return StatDef{}, false
}

// StatNames returns the statistics predicted for a sport.
func (c Catalog) StatNames(sport string) []string {
	def, ok := c[sport]
	if !ok {
		return nil
	}
	names := make([]string, len(def.Stats))
	for i, s := range def.Stats {
		names[i] = s.Name
	}
	return names
}

// Canonical maps an upstream statistic key to the catalog name for a sport.
func (c Catalog) Canonical(sport, key string) (string, bool) {
	def, ok := c[sport]
	if !ok {
		return "", false
	}
	for _, s := range def.Stats {
		if s.Name == key {
			return s.Name, true
		}
		for _, a := range s.Aliases {
			if a == key {
				return s.Name, true
			}
		}
	}
	return "", false
}
