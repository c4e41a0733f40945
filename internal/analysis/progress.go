package analysis

import (
	"golang.org/x/time/rate"
)

// Phase names reported through progress notifications.
const (
	PhaseStreaming  = "streaming"
	PhaseFinalizing = "finalizing"
	PhasePCA        = "pca"
	PhaseClustering = "clustering"
	PhaseOutliers   = "outliers"
	PhaseDone       = "done"
)

// Progress is one best-effort notification. RowsProcessed is monotonic; no
// other ordering is guaranteed.
type Progress struct {
	Phase         string  `json:"phase"`
	RowsProcessed int64   `json:"rows_processed"`
	ChunkSize     int     `json:"chunk_size"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
}

// Observer receives progress notifications: once per chunk during streaming
// (rate-limited) and once per post-stream stage. Implementations must not
// block; the coordinator calls them synchronously.
type Observer interface {
	OnProgress(p Progress)
}

// progressNotifier throttles chunk notifications so a fast stream does not
// drown the observer, while stage transitions always go through.
type progressNotifier struct {
	observer Observer
	limiter  *rate.Limiter
}

// chunkNotifyRate caps chunk-boundary notifications per second.
const chunkNotifyRate = 20

func newProgressNotifier(observer Observer) *progressNotifier {
	return &progressNotifier{
		observer: observer,
		limiter:  rate.NewLimiter(rate.Limit(chunkNotifyRate), 1),
	}
}

// chunk delivers a chunk-boundary notification, subject to rate limiting.
func (n *progressNotifier) chunk(p Progress) {
	if n.observer == nil {
		return
	}
	if !n.limiter.Allow() {
		return
	}
	n.observer.OnProgress(p)
}

// stage delivers a stage-transition notification unconditionally.
func (n *progressNotifier) stage(p Progress) {
	if n.observer == nil {
		return
	}
	n.observer.OnProgress(p)
}
