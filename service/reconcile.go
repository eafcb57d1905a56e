package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitwise74/photo-api/index"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/validators"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "photo_reconcile_duration_seconds",
	Help:    "Duration of full reconciliation runs",
	Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
})

var errLimitReached = errors.New("limit reached")

type ReconcileOptions struct {
	Prefix string
	DryRun bool
	// Limit caps how many originals are visited, zero means all
	Limit int
}

type ReconcileReport struct {
	Scanned   int `json:"scanned"`
	Generated int `json:"generated"`
	Indexed   int `json:"indexed"`
	Pruned    int `json:"pruned"`
	Failed    int `json:"failed"`
}

// Reconciler walks the bucket, backfills missing derivatives and rebuilds
// the index. It is the repair path for any drift between store and index:
// rows whose object no longer exists are pruned after a complete walk.
type Reconciler struct {
	store storage.Store
	gen   *Generator
	index *index.Index
	width int
}

func NewReconciler(store storage.Store, gen *Generator, idx *index.Index, width int) *Reconciler {
	if width <= 0 {
		width = DefaultProbeWidth
	}

	return &Reconciler{
		store: store,
		gen:   gen,
		index: idx,
		width: width,
	}
}

func (r *Reconciler) Run(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	start := time.Now()
	defer func() {
		reconcileDuration.Observe(time.Since(start).Seconds())
	}()

	var originals []storage.ObjectInfo

	err := storage.Walk(ctx, r.store, opts.Prefix, func(obj storage.ObjectInfo) error {
		if opts.Limit > 0 && len(originals) >= opts.Limit {
			return errLimitReached
		}

		if storage.IsDerivativeKey(obj.Key) || storage.IsFolderMarker(obj.Key) || !validators.IsSupportedImage(obj.Key) {
			return nil
		}

		originals = append(originals, obj)
		return nil
	})
	truncated := errors.Is(err, errLimitReached)
	if err != nil && !truncated {
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(originals)}

	if opts.DryRun {
		for _, obj := range originals {
			zap.L().Info("Would reconcile", zap.String("key", obj.Key), zap.Int64("size", obj.Size))
		}

		if !truncated {
			stale, err := r.staleKeys(ctx, opts.Prefix, originals)
			if err != nil {
				return nil, err
			}

			for _, key := range stale {
				zap.L().Info("Would prune", zap.String("key", key))
			}
		}

		return report, nil
	}

	var mu sync.Mutex
	records := make([]model.IndexRecord, 0, len(originals))

	p := pool.New().WithMaxGoroutines(r.width)
	for _, obj := range originals {
		p.Go(func() {
			generated, failed := 0, false
			for _, res := range r.gen.GenerateAll(ctx, obj.Key) {
				switch {
				case res.Success:
					generated++
				case res.Failed():
					failed = true
				}
			}

			rec, err := recordFor(ctx, r.store, obj.Key)
			if err != nil {
				zap.L().Warn("Failed to read object during reconcile", zap.String("key", obj.Key), zap.Error(err))
				failed = true
			}

			mu.Lock()
			defer mu.Unlock()

			report.Generated += generated
			if failed {
				report.Failed++
			}

			if rec != nil {
				records = append(records, *rec)
			}
		})
	}
	p.Wait()

	written, err := r.index.BatchUpsert(ctx, records)
	report.Indexed = written
	if err != nil {
		zap.L().Error("Failed to write index records", zap.Int("written", written), zap.Error(err))
		report.Failed += len(records) - written
	}

	// A partial walk can't tell a missing object from an unvisited one
	if truncated {
		zap.L().Info("Walk stopped at the limit, index left unpruned", zap.Int("limit", opts.Limit))
		return report, nil
	}

	stale, err := r.staleKeys(ctx, opts.Prefix, originals)
	if err != nil {
		zap.L().Error("Failed to list index keys", zap.Error(err))
		report.Failed++
		return report, nil
	}

	pruned, err := r.index.DeleteKeys(ctx, stale)
	report.Pruned = pruned
	if err != nil {
		zap.L().Error("Failed to prune index records", zap.Int("pruned", pruned), zap.Error(err))
		report.Failed += len(stale) - pruned
	}

	return report, nil
}

// staleKeys returns indexed keys under prefix that the walk did not see.
func (r *Reconciler) staleKeys(ctx context.Context, prefix string, seen []storage.ObjectInfo) ([]string, error) {
	indexed, err := r.index.KeysUnder(ctx, prefix)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(seen))
	for _, obj := range seen {
		present[obj.Key] = struct{}{}
	}

	var stale []string
	for _, key := range indexed {
		if _, ok := present[key]; !ok {
			stale = append(stale, key)
		}
	}

	return stale, nil
}
