package analysis

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"Bt1Deck/logger"
	"Bt1Deck/model"
)

// Extractor computes features for a source.
type Extractor interface {
	Extract(ctx context.Context, src model.MediaRef) (model.Features, error)
}

// Target is the playlist the batch renames. Writes are by track ID so a track
// removed mid-batch is skipped.
type Target interface {
	Tracks() []model.Track
	RenameByID(id, name string) bool
	ResetNameByID(id string) bool
}

// Report summarizes a RenameAll run.
type Report struct {
	Total   int `json:"total"`
	Renamed int `json:"renamed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"` // removed before the result arrived
}

// Renamer is the batch auto-rename driver.
type Renamer struct {
	extractor Extractor
	workers   int
}

// NewRenamer creates a renamer running up to workers analyses at once.
// One worker processes the playlist in order.
func NewRenamer(extractor Extractor, workers int) *Renamer {
	if workers < 1 {
		workers = 1
	}
	return &Renamer{extractor: extractor, workers: workers}
}

// RenameAll labels every track from its features. A track whose analysis
// fails gets its source name back; other tracks are unaffected. Cancelling
// ctx stops scheduling new tracks.
func (r *Renamer) RenameAll(ctx context.Context, target Target) Report {
	tracks := target.Tracks()
	start := time.Now()

	var renamed, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.workers)

	for _, t := range tracks {
		if ctx.Err() != nil {
			break
		}
		t := t
		g.Go(func() error {
			features, err := r.extractor.Extract(ctx, t.Media)
			if err != nil {
				logger.Warn("feature extraction failed, keeping source name",
					logger.String("track", t.ID),
					logger.String("source", t.SourceName),
					logger.ErrorField(err))
				failed.Add(1)
				if !target.ResetNameByID(t.ID) {
					skipped.Add(1)
				}
				return nil
			}
			label := NameFromFeatures(t.SourceName, features)
			if !target.RenameByID(t.ID, label) {
				skipped.Add(1)
				return nil
			}
			renamed.Add(1)
			logger.Debug("track renamed",
				logger.String("track", t.ID),
				logger.String("label", label),
				logger.Float64("energy", features.Energy),
				logger.Float64("centroid", features.Centroid),
				logger.Int("tempo", features.Tempo))
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Total:   len(tracks),
		Renamed: int(renamed.Load()),
		Failed:  int(failed.Load()),
		Skipped: int(skipped.Load()),
	}
	logger.Info("auto-rename finished",
		logger.Int("total", report.Total),
		logger.Int("renamed", report.Renamed),
		logger.Int("failed", report.Failed),
		logger.Duration("elapsed", time.Since(start)))
	return report
}
