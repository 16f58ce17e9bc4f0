package cache

import (
	"context"

	"github.com/ZanzyTHEbar/critpath"
	"github.com/ZanzyTHEbar/critpath/internal/estimator"
	"github.com/ZanzyTHEbar/critpath/internal/graph"
)

const analysisPrefix = "analysis:"

// Analyses memoises estimator results per graph fingerprint.
type Analyses struct {
	store critpath.Cache
}

// NewAnalyses wraps store. A nil store disables memoisation.
func NewAnalyses(store critpath.Cache) *Analyses {
	return &Analyses{store: store}
}

// Analyze returns the analysis of g, computing it on a miss. hit reports
// whether the result came from the cache.
func (a *Analyses) Analyze(ctx context.Context, g *graph.Graph) (analysis *estimator.Analysis, hit bool, err error) {
	if a == nil || a.store == nil {
		analysis, err = estimator.Analyze(g)
		return analysis, false, err
	}

	key := analysisPrefix + g.Fingerprint()
	if v, getErr := a.store.Get(ctx, key); getErr == nil {
		if cached, ok := v.(*estimator.Analysis); ok {
			return cached, true, nil
		}
	}

	analysis, err = estimator.Analyze(g)
	if err != nil {
		return nil, false, err
	}
	// A failed store only costs a recomputation next time.
	_ = a.store.Set(ctx, key, analysis)
	return analysis, false, nil
}
