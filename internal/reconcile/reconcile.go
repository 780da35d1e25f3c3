// Package reconcile joins stored predictions against observed results and
// aggregates directional accuracy.
//
// A result equal to the line is a push: it is neither correct nor incorrect,
// is left out of every accuracy ratio and is reported in Pushes.
package reconcile

import (
	"math"
	"sort"

	"github.com/propsight/prediction-api/internal/models"
)

// Outcome is the graded result of one matched prediction.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomePush      Outcome = "push"
)

// Direction of a call or a result relative to the line.
const (
	DirectionOver  = "over"
	DirectionUnder = "under"
)

// Bucket is the accuracy of one slice of graded predictions.
type Bucket struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Pushes   int     `json:"pushes"`
	Accuracy float64 `json:"accuracy"`
}

func (b *Bucket) add(o Outcome) {
	switch o {
	case OutcomePush:
		b.Pushes++
		return
	case OutcomeCorrect:
		b.Correct++
	}
	b.Total++
}

func (b *Bucket) finish() {
	b.Accuracy = percent(b.Correct, b.Total)
}

// CalibrationBand compares the claimed probability of the chosen side with
// how often that side actually hit.
type CalibrationBand struct {
	Lower          float64 `json:"lower"`
	Upper          float64 `json:"upper"`
	Count          int     `json:"count"`
	MeanConfidence float64 `json:"mean_confidence"`
	HitRate        float64 `json:"hit_rate"`

	sum float64
	hit int
}

// Graded is one matched, non-malformed prediction and its outcome.
type Graded struct {
	Key             models.PredictionKey  `json:"key"`
	Sport           string                `json:"sport"`
	Confidence      models.ConfidenceTier `json:"confidence"`
	Predicted       string                `json:"predicted"`
	ActualDirection string                `json:"actual_direction"`
	Line            float64               `json:"line"`
	ActualValue     float64               `json:"actual_value"`
	Outcome         Outcome               `json:"outcome"`
}

// Report is the accuracy summary of one reconciliation. It is never persisted.
type Report struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"overall_accuracy"`
	Pushes   int     `json:"pushes"`
	// Unmatched counts predictions with no actual result yet.
	Unmatched int `json:"unmatched"`
	// Skipped counts actual results rejected as malformed or duplicate.
	Skipped int `json:"skipped"`
	// BrierScore is the mean squared error of over_probability on graded
	// predictions. 0 when nothing was graded.
	BrierScore float64 `json:"brier_score"`

	ByConfidence map[models.ConfidenceTier]*Bucket `json:"by_confidence"`
	BySport      map[string]*Bucket                `json:"by_sport"`
	ByStatistic  map[string]*Bucket                `json:"by_statistic"`
	Calibration  []*CalibrationBand                `json:"calibration"`

	Errors []models.ReconciliationJoinError `json:"-"`
	Graded []Graded                         `json:"-"`
}

// Reconcile joins predictions with actuals on (player, game, statistic) and
// grades each match. It has no side effects and does not depend on input order.
func Reconcile(predictions []*models.Prediction, actuals []models.ActualResult) *Report {
	r := newReport()

	index, rejected := indexActuals(actuals)
	r.Errors = rejected
	r.Skipped = len(rejected)

	ordered := make([]*models.Prediction, 0, len(predictions))
	for _, p := range predictions {
		if p != nil {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Key().String() < ordered[j].Key().String()
	})

	var sqErr float64
	graded := 0
	for _, p := range ordered {
		actual, ok := index[p.Key()]
		if !ok {
			r.Unmatched++
			continue
		}
		g := Grade(p, actual.ActualValue)
		r.Graded = append(r.Graded, g)

		r.tier(p.Confidence).add(g.Outcome)
		r.bucket(r.BySport, p.Sport).add(g.Outcome)
		r.bucket(r.ByStatistic, p.StatType).add(g.Outcome)

		if g.Outcome == OutcomePush {
			r.Pushes++
			continue
		}
		r.Total++
		if g.Outcome == OutcomeCorrect {
			r.Correct++
		}

		wentOver := 0.0
		if g.ActualDirection == DirectionOver {
			wentOver = 1
		}
		sqErr += (p.OverProbability - wentOver) * (p.OverProbability - wentOver)
		graded++
		r.calibrate(p, g.Outcome == OutcomeCorrect)
	}

	r.Accuracy = percent(r.Correct, r.Total)
	if graded > 0 {
		r.BrierScore = round(sqErr/float64(graded), 4)
	}
	for _, b := range r.ByConfidence {
		b.finish()
	}
	for _, b := range r.BySport {
		b.finish()
	}
	for _, b := range r.ByStatistic {
		b.finish()
	}
	for _, band := range r.Calibration {
		if band.Count > 0 {
			band.MeanConfidence = round(band.sum/float64(band.Count), 4)
			band.HitRate = percent(band.hit, band.Count)
		}
	}
	return r
}

// Grade classifies a single prediction against an observed value.
func Grade(p *models.Prediction, actual float64) Graded {
	g := Graded{
		Key:         p.Key(),
		Sport:       p.Sport,
		Confidence:  p.Confidence,
		Predicted:   DirectionUnder,
		Line:        p.Line,
		ActualValue: actual,
	}
	if p.PredictsOver() {
		g.Predicted = DirectionOver
	}
	switch {
	case actual > p.Line:
		g.ActualDirection = DirectionOver
	case actual < p.Line:
		g.ActualDirection = DirectionUnder
	default:
		g.Outcome = OutcomePush
		return g
	}
	if g.Predicted == g.ActualDirection {
		g.Outcome = OutcomeCorrect
	} else {
		g.Outcome = OutcomeIncorrect
	}
	return g
}

// indexActuals keys valid results and rejects malformed ones. A key seen
// twice is ambiguous; every copy is rejected.
func indexActuals(actuals []models.ActualResult) (map[models.PredictionKey]models.ActualResult, []models.ReconciliationJoinError) {
	index := make(map[models.PredictionKey]models.ActualResult, len(actuals))
	dupes := make(map[models.PredictionKey]int)
	var rejected []models.ReconciliationJoinError

	for _, a := range actuals {
		key := a.Key()
		switch {
		case !key.Valid():
			rejected = append(rejected, models.ReconciliationJoinError{Key: key, Reason: "incomplete key"})
			continue
		case math.IsNaN(a.ActualValue) || math.IsInf(a.ActualValue, 0):
			rejected = append(rejected, models.ReconciliationJoinError{Key: key, Reason: "actual value not finite"})
			continue
		case a.ActualValue < 0:
			rejected = append(rejected, models.ReconciliationJoinError{Key: key, Reason: "negative actual value"})
			continue
		}
		if _, seen := index[key]; seen {
			dupes[key]++
			continue
		}
		index[key] = a
	}

	keys := make([]models.PredictionKey, 0, len(dupes))
	for key := range dupes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, key := range keys {
		delete(index, key)
		for i := 0; i <= dupes[key]; i++ {
			rejected = append(rejected, models.ReconciliationJoinError{Key: key, Reason: "duplicate actual result"})
		}
	}
	return index, rejected
}

func newReport() *Report {
	r := &Report{
		ByConfidence: make(map[models.ConfidenceTier]*Bucket, len(models.ConfidenceTiers)),
		BySport:      make(map[string]*Bucket),
		ByStatistic:  make(map[string]*Bucket),
	}
	for _, tier := range models.ConfidenceTiers {
		r.ByConfidence[tier] = &Bucket{}
	}
	for lower := 5; lower < 10; lower++ {
		r.Calibration = append(r.Calibration, &CalibrationBand{
			Lower: float64(lower) / 10,
			Upper: float64(lower+1) / 10,
		})
	}
	return r
}

func (r *Report) tier(t models.ConfidenceTier) *Bucket {
	b, ok := r.ByConfidence[t]
	if !ok {
		b = &Bucket{}
		r.ByConfidence[t] = b
	}
	return b
}

func (r *Report) bucket(m map[string]*Bucket, name string) *Bucket {
	b, ok := m[name]
	if !ok {
		b = &Bucket{}
		m[name] = b
	}
	return b
}

// calibrate records the probability of the side the prediction chose.
func (r *Report) calibrate(p *models.Prediction, hit bool) {
	conf := p.OverProbability
	if !p.PredictsOver() {
		conf = 1 - conf
	}
	idx := int(math.Floor(conf*10)) - 5
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.Calibration) {
		idx = len(r.Calibration) - 1
	}
	band := r.Calibration[idx]
	band.Count++
	band.sum += conf
	if hit {
		band.hit++
	}
}

// percent returns 100*num/den rounded to two decimals, 0 when den is 0.
func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return round(100*float64(num)/float64(den), 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
