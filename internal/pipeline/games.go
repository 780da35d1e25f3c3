package pipeline

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/propsight/prediction-api/internal/models"
)

// UpcomingResult lists the adapted schedule of upcoming games.
type UpcomingResult struct {
	Games        []models.RawGame `json:"games"`
	SportsFailed []string         `json:"sports_failed"`
}

// UpcomingGames fetches and adapts the schedule without rosters. It takes no
// run lock and writes nothing. A sport whose schedule cannot be fetched is
// listed in SportsFailed; when every sport fails the first failure is
// returned as *models.DataSourceError.
func (p *Pipeline) UpcomingGames(ctx context.Context, sport string, days int) (*UpcomingResult, error) {
	sports, err := p.sportsFor(sport)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = p.cfg.DaysAhead
	}

	var (
		mu   sync.Mutex
		errs = make(map[string]error)
		res  = &UpcomingResult{Games: []models.RawGame{}, SportsFailed: []string{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSports)
	for _, sport := range sports {
		sport := sport
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, p.cfg.FetchTimeout)
			defer cancel()

			raw, err := p.cfg.Source.UpcomingGames(fctx, sport, days)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warnw("Upcoming games unavailable", "sport", sport, "error", err)
				errs[sport] = err
				res.SportsFailed = append(res.SportsFailed, sport)
				return nil
			}
			set, stats := p.cfg.Adapter.AdaptSchedule(sport, raw, nil)
			if stats.DroppedGames > 0 {
				p.logger.Warnw("Dropped malformed games", "sport", sport, "games", stats.DroppedGames)
			}
			for _, gr := range set[sport] {
				res.Games = append(res.Games, gr.Game)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(res.SportsFailed)
	if len(sports) > 0 && len(res.SportsFailed) == len(sports) {
		first := res.SportsFailed[0]
		return nil, &models.DataSourceError{Sport: first, Op: "schedule", Err: errs[first]}
	}
	sort.SliceStable(res.Games, func(i, j int) bool {
		a, b := res.Games[i], res.Games[j]
		if !a.Scheduled.Equal(b.Scheduled) {
			return a.Scheduled.Before(b.Scheduled)
		}
		return a.ID < b.ID
	})
	return res, nil
}
