// Package pipeline runs prediction generation end to end: fetch upcoming
// games, adapt them, extract features, predict, and upsert in batches. It
// also collects actual results for finished games and purges old rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propsight/prediction-api/internal/engine"
	"github.com/propsight/prediction-api/internal/features"
	"github.com/propsight/prediction-api/internal/models"
	"github.com/propsight/prediction-api/internal/source"
	"github.com/propsight/prediction-api/internal/store"
	"github.com/propsight/prediction-api/internal/worker"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_run_duration_seconds",
		Help:    "Duration of pipeline runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"scope", "status"})

	sportFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_sport_fetch_failures_total",
		Help: "Sports skipped in a run because their data could not be fetched",
	}, []string{"sport"})

	actualsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "actual_results_collected_total",
		Help: "Actual results written from finished game summaries",
	})
)

// ScopeAll is the scope reported by a run over every configured sport.
const ScopeAll = "all"

// maxConcurrentSports bounds how many sports are fetched at once.
const maxConcurrentSports = 2

// Config wires a Pipeline.
type Config struct {
	Source    source.DataSource
	Adapter   *source.Adapter
	Extractor *features.Extractor
	Engine    *engine.Engine
	Store     store.Store
	// History is optional.
	History store.HistorySink
	Lock    store.RunLock

	Sports        []string
	DaysAhead     int
	FetchTimeout  time.Duration
	LockTTL       time.Duration
	RetentionDays int

	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// RunRequest selects what a run covers. Zero values use the configured
// sports and days ahead.
type RunRequest struct {
	Sport     string `json:"sport" validate:"omitempty,oneof=nba nfl mlb nhl ncaafb ncaamb"`
	DaysAhead int    `json:"days_ahead" validate:"omitempty,min=1,max=14"`
}

// CollectResult summarizes one actual-results collection.
type CollectResult struct {
	Pending int `json:"pending_games"`
	Games   int `json:"games_collected"`
	Actuals int `json:"actuals_written"`
	Failed  int `json:"games_failed"`
}

// Pipeline is safe for concurrent use; runs covering a common sport are
// serialized by the per-sport run locks.
type Pipeline struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Store == nil || cfg.Engine == nil || cfg.Extractor == nil {
		return nil, errors.New("pipeline: source, store, engine and extractor are required")
	}
	if cfg.Adapter == nil {
		cfg.Adapter = source.NewAdapter(cfg.Extractor.Catalog().Canonical)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Lock == nil {
		cfg.Lock = store.NewMemoryRunLock(cfg.Now)
	}
	if len(cfg.Sports) == 0 {
		cfg.Sports = cfg.Extractor.Catalog().Sports()
	}
	if cfg.DaysAhead <= 0 {
		cfg.DaysAhead = 7
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger.Sugar()}, nil
}

// sportBatch is the adapted input of one sport.
type sportBatch struct {
	sport string
	games []models.GameRoster
	ranks models.OpponentRanks
}

// Run generates predictions for upcoming games. It returns
// models.ErrRunInProgress when another run holds the lock of any sport it covers.
// A sport whose data cannot be fetched is logged and skipped.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*models.RunResult, error) {
	sports, err := p.sportsFor(req.Sport)
	if err != nil {
		return nil, err
	}
	scope := ScopeAll
	if req.Sport != "" {
		scope = req.Sport
	}
	days := req.DaysAhead
	if days <= 0 {
		days = p.cfg.DaysAhead
	}

	release, err := p.acquireLocks(ctx, sports)
	if err != nil {
		return nil, err
	}
	defer release()

	start := p.cfg.Now()
	result := &models.RunResult{RunID: uuid.NewString(), Scope: scope}
	log := p.logger.With("run_id", result.RunID, "scope", scope)
	log.Infow("Pipeline run started", "sports", sports, "days_ahead", days)

	batches, failed := p.fetchAll(ctx, sports, days)
	result.SportsFailed = failed
	for _, b := range batches {
		result.Games += len(b.games)
	}

	stats := p.predict(ctx, result.RunID, batches)
	result.Generated = int(stats.Generated)
	result.Skipped = int(stats.Skipped)
	result.Failed = int(stats.Failed)
	result.Duration = p.cfg.Now().Sub(start)

	status := "ok"
	if ctx.Err() != nil {
		status = "canceled"
	} else if len(failed) > 0 || result.Failed > 0 {
		status = "partial"
	}
	runDuration.WithLabelValues(scope, status).Observe(result.Duration.Seconds())

	log.Infow("Pipeline run finished",
		"status", status,
		"games", result.Games,
		"generated", result.Generated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"sports_failed", result.SportsFailed,
		"duration", result.Duration,
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// sportsFor resolves a requested sport to the sports it covers. An empty
// sport means every configured sport.
func (p *Pipeline) sportsFor(sport string) ([]string, error) {
	if sport == "" {
		return p.cfg.Sports, nil
	}
	if _, ok := p.cfg.Extractor.Catalog()[sport]; !ok {
		return nil, fmt.Errorf("unsupported sport %q", sport)
	}
	return []string{sport}, nil
}

// acquireLocks takes the run lock of every sport in sorted order so that an
// all-sports run and a single-sport run covering the same sport exclude each
// other. On failure the locks taken so far are released. The returned func
// releases in reverse order.
func (p *Pipeline) acquireLocks(ctx context.Context, sports []string) (func(), error) {
	keys := append([]string(nil), sports...)
	sort.Strings(keys)
	keys = slices.Compact(keys)

	type held struct{ key, token string }
	var acquired []held
	release := func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(acquired) - 1; i >= 0; i-- {
			h := acquired[i]
			if err := p.cfg.Lock.Release(rctx, h.key, h.token); err != nil {
				p.logger.Warnw("Failed to release run lock", "sport", h.key, "error", err)
			}
		}
	}
	for _, key := range keys {
		token, err := p.cfg.Lock.Acquire(ctx, key, p.cfg.LockTTL)
		if err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, held{key: key, token: token})
	}
	return release, nil
}

// fetchAll fetches every sport concurrently. The returned batches are in
// sport order.
func (p *Pipeline) fetchAll(ctx context.Context, sports []string, days int) ([]sportBatch, []string) {
	var (
		mu      sync.Mutex
		batches []sportBatch
		failed  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSports)
	for _, sport := range sports {
		sport := sport
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, p.cfg.FetchTimeout)
			defer cancel()

			batch, err := p.fetchSport(fctx, sport, days)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Errorw("Skipping sport", "sport", sport, "error", err)
				sportFetchFailures.WithLabelValues(sport).Inc()
				failed = append(failed, sport)
				return nil
			}
			batches = append(batches, batch)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(batches, func(i, j int) bool { return batches[i].sport < batches[j].sport })
	sort.Strings(failed)
	return batches, failed
}

// fetchSport loads schedule, rosters and standings for one sport. Only a
// schedule failure fails the sport; missing rosters or standings degrade to
// empty rosters and default opponent ranks.
func (p *Pipeline) fetchSport(ctx context.Context, sport string, days int) (sportBatch, error) {
	raw, err := p.cfg.Source.UpcomingGames(ctx, sport, days)
	if err != nil {
		return sportBatch{}, &models.DataSourceError{Sport: sport, Op: "schedule", Err: err}
	}

	rosters := make(map[string]map[string]any)
	for _, g := range raw {
		for _, side := range []string{"home", "away"} {
			teamID := models.FlexString(models.FlexMap(g[side])["id"])
			if teamID == "" {
				continue
			}
			if _, seen := rosters[teamID]; seen {
				continue
			}
			roster, err := p.cfg.Source.TeamRoster(ctx, sport, teamID)
			if err != nil {
				if ctx.Err() != nil {
					return sportBatch{}, &models.DataSourceError{Sport: sport, Op: "roster", Err: ctx.Err()}
				}
				p.logger.Warnw("Roster unavailable", "sport", sport, "team", teamID, "error", err)
			}
			rosters[teamID] = roster
		}
	}

	set, stats := p.cfg.Adapter.AdaptSchedule(sport, raw, rosters)
	if stats.DroppedGames > 0 || stats.DroppedPlayers > 0 {
		p.logger.Warnw("Dropped malformed records",
			"sport", sport,
			"games", stats.DroppedGames,
			"players", stats.DroppedPlayers,
		)
	}

	var ranks models.OpponentRanks
	standings, err := p.cfg.Source.Standings(ctx, sport)
	if err != nil {
		p.logger.Warnw("Standings unavailable, using default opponent ranks", "sport", sport, "error", err)
	} else if standings != nil {
		ranks = p.cfg.Adapter.AdaptStandings(standings)
	}

	return sportBatch{sport: sport, games: set[sport], ranks: ranks}, nil
}

// predict fans every (game, player) pair out to a worker pool.
func (p *Pipeline) predict(ctx context.Context, runID string, batches []sportBatch) worker.Stats {
	pool := worker.NewPool(worker.PoolConfig{
		WorkerCount:   p.cfg.WorkerCount,
		QueueSize:     p.cfg.QueueSize,
		BatchSize:     p.cfg.BatchSize,
		FlushInterval: p.cfg.FlushInterval,
		Handler:       p.handle,
		Flush: func(ctx context.Context, batch []*models.Prediction) error {
			return p.flush(ctx, runID, batch)
		},
		Logger: p.cfg.Logger,
	})
	pool.Start(ctx)

enqueue:
	for _, b := range batches {
		for _, gr := range b.games {
			home, away := gameContexts(gr.Game, b.ranks)
			for _, pl := range gr.Home {
				if !pool.Enqueue(worker.Job{Game: home, Player: pl}) {
					break enqueue
				}
			}
			for _, pl := range gr.Away {
				if !pool.Enqueue(worker.Job{Game: away, Player: pl}) {
					break enqueue
				}
			}
		}
	}
	return pool.Stop()
}

// gameContexts returns the home and away perspectives of a game.
func gameContexts(g models.RawGame, ranks models.OpponentRanks) (home, away models.GameContext) {
	home = models.GameContext{
		Game:           g,
		Side:           models.SideHome,
		TeamName:       teamLabel(g.Home),
		OpponentTeamID: g.Away.ID,
		OpponentName:   teamLabel(g.Away),
		OpponentRank:   ranks[g.Away.ID],
	}
	away = models.GameContext{
		Game:           g,
		Side:           models.SideAway,
		TeamName:       teamLabel(g.Away),
		OpponentTeamID: g.Home.ID,
		OpponentName:   teamLabel(g.Home),
		OpponentRank:   ranks[g.Home.ID],
	}
	return home, away
}

func teamLabel(t models.RawTeam) string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// handle predicts every catalog statistic for one player.
func (p *Pipeline) handle(ctx context.Context, job worker.Job) worker.Result {
	sport := job.Game.Game.Sport
	stats := p.cfg.Extractor.Catalog().StatNames(sport)

	raw, err := p.cfg.Source.PlayerStats(ctx, sport, job.Player.ID)
	if err != nil {
		p.logger.Warnw("Player stats unavailable",
			"sport", sport,
			"player", job.Player.ID,
			"error", &models.DataSourceError{Sport: sport, Op: "player_stats", Err: err},
		)
		return worker.Result{Failed: len(stats)}
	}
	var history *models.StatHistory
	if raw != nil {
		history = p.cfg.Adapter.AdaptPlayerStats(sport, job.Player.ID, raw)
	}

	var res worker.Result
	for _, stat := range stats {
		fv, err := p.cfg.Extractor.Extract(job.Player, history, job.Game, stat)
		if err == nil {
			var pred *models.Prediction
			pred, err = p.cfg.Engine.Predict(fv, nil)
			if err == nil {
				res.Predictions = append(res.Predictions, pred)
				continue
			}
		}
		if models.IsSkippable(err) {
			p.logger.Debugw("Skipping prediction", "player", job.Player.ID, "stat", stat, "reason", err)
			res.Skipped++
			continue
		}
		p.logger.Errorw("Prediction failed", "player", job.Player.ID, "stat", stat, "error", err)
		res.Failed++
	}
	return res
}

// flush upserts a batch and mirrors it to the history sink. History errors
// are logged only.
func (p *Pipeline) flush(ctx context.Context, runID string, batch []*models.Prediction) error {
	if _, err := p.cfg.Store.UpsertBatch(ctx, batch); err != nil {
		return err
	}
	if p.cfg.History != nil {
		if err := p.cfg.History.Record(ctx, runID, batch); err != nil {
			p.logger.Warnw("Failed to record prediction history", "run_id", runID, "error", err)
		}
	}
	return nil
}

// CollectActuals fetches box scores for games that have predictions but no
// actual results and stores the results. An empty sport covers every sport.
func (p *Pipeline) CollectActuals(ctx context.Context, sport string) (*CollectResult, error) {
	pending, err := p.cfg.Store.PendingGames(ctx, sport, p.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("list pending games: %w", err)
	}

	res := &CollectResult{Pending: len(pending)}
	for _, game := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		summary, err := p.cfg.Source.GameSummary(ctx, game.Sport, game.GameID)
		if err != nil {
			p.logger.Warnw("Game summary unavailable", "sport", game.Sport, "game", game.GameID, "error", err)
			res.Failed++
			continue
		}
		actuals := p.cfg.Adapter.AdaptGameSummary(game.Sport, summary)
		if len(actuals) == 0 {
			continue
		}
		n, err := p.cfg.Store.UpsertActuals(ctx, actuals)
		if err != nil {
			p.logger.Errorw("Failed to store actual results", "game", game.GameID, "error", err)
			res.Failed++
			continue
		}
		res.Games++
		res.Actuals += n
		actualsCollected.Add(float64(n))
	}

	p.logger.Infow("Actual results collected",
		"sport", sport,
		"pending", res.Pending,
		"games", res.Games,
		"actuals", res.Actuals,
		"failed", res.Failed,
	)
	return res, nil
}

// Purge deletes predictions for games older than the retention window.
func (p *Pipeline) Purge(ctx context.Context) (int64, error) {
	cutoff := p.cfg.Now().Add(-time.Duration(p.cfg.RetentionDays) * 24 * time.Hour)
	n, err := p.cfg.Store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge predictions: %w", err)
	}
	p.logger.Infow("Purged old predictions", "cutoff", cutoff, "deleted", n)
	return n, nil
}
