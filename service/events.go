package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"bitwise74/photo-api/index"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/validators"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const DefaultEventConcurrency = 10

var eventRecordsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "photo_event_records_total",
		Help: "Storage event records handled by outcome",
	},
	[]string{"outcome"},
)

// EventRecord is a single object-created notification. Key is already
// URL-decoded.
type EventRecord struct {
	Bucket    string
	Key       string
	EventName string
	Size      int64
}

type BatchReport struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type s3Event struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseS3Event decodes an S3 notification document and returns its
// object-created records. Keys arrive form-encoded, so "+" becomes a space.
func ParseS3Event(body []byte) ([]EventRecord, error) {
	var ev s3Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode storage event, %w", err)
	}

	records := make([]EventRecord, 0, len(ev.Records))
	for _, r := range ev.Records {
		if r.EventName != "" && !strings.Contains(r.EventName, "ObjectCreated") {
			continue
		}

		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			key = r.S3.Object.Key
		}

		records = append(records, EventRecord{
			Bucket:    r.S3.Bucket.Name,
			Key:       key,
			EventName: r.EventName,
			Size:      r.S3.Object.Size,
		})
	}

	return records, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeProcessed:
		return "processed"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// EventRouter turns object-created notifications into derivatives and
// index updates.
type EventRouter struct {
	store       storage.Store
	gen         *Generator
	index       *index.Index
	concurrency int
}

func NewEventRouter(store storage.Store, gen *Generator, idx *index.Index, concurrency int) *EventRouter {
	if concurrency <= 0 {
		concurrency = DefaultEventConcurrency
	}

	return &EventRouter{
		store:       store,
		gen:         gen,
		index:       idx,
		concurrency: concurrency,
	}
}

// HandleBatch processes every record with bounded concurrency and never
// fails as a whole. A panic or error in one record is counted and logged.
func (r *EventRouter) HandleBatch(ctx context.Context, records []EventRecord) BatchReport {
	report := BatchReport{Received: len(records)}
	if len(records) == 0 {
		return report
	}

	p := pool.NewWithResults[outcome]().WithMaxGoroutines(r.concurrency)
	for _, rec := range records {
		p.Go(func() outcome {
			return r.handleRecord(ctx, rec)
		})
	}

	for _, o := range p.Wait() {
		eventRecordsTotal.WithLabelValues(o.String()).Inc()

		switch o {
		case outcomeProcessed:
			report.Processed++
		case outcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	return report
}

func (r *EventRouter) handleRecord(ctx context.Context, rec EventRecord) (out outcome) {
	defer func() {
		if v := recover(); v != nil {
			zap.L().Error("Recovered from panic while handling storage event", zap.String("key", rec.Key), zap.Any("panic", v))
			out = outcomeFailed
		}
	}()

	if rec.Bucket != "" && rec.Bucket != r.store.BucketName() {
		zap.L().Debug("Ignoring event for foreign bucket", zap.String("bucket", rec.Bucket))
		return outcomeSkipped
	}

	if rec.Key == "" || storage.IsDerivativeKey(rec.Key) || storage.IsFolderMarker(rec.Key) || !validators.IsSupportedImage(rec.Key) {
		return outcomeSkipped
	}

	failed := false
	for _, res := range r.gen.GenerateAll(ctx, rec.Key) {
		if res.Failed() {
			failed = true
		}
	}

	if err := indexObject(ctx, r.store, r.index, rec.Key); err != nil {
		zap.L().Warn("Failed to index object", zap.String("key", rec.Key), zap.Error(err))
	}

	if failed {
		return outcomeFailed
	}

	return outcomeProcessed
}
