package pipeline

import (
	"context"
	"time"
)

// StartInfo announces that a generation request passed validation and
// is about to fan out to the synthesizer.
type StartInfo struct {
	RequestID string
	NewsID    string
	Voice     string
	Format    string
	Segments  int
	Chars     int
}

// SegmentInfo reports one segment synthesis call, successful or not.
type SegmentInfo struct {
	RequestID string
	Index     int
	Attempts  int
	Bytes     int
	Duration  time.Duration
	Err       error
}

// FinishInfo closes out a request. Err is nil on success; AudioSeconds
// is nil when the assembled bytes did not yield a duration.
type FinishInfo struct {
	RequestID    string
	NewsID       string
	Voice        string
	Model        string
	Format       string
	Segments     int
	Chars        int
	AudioBytes   int
	AudioSeconds *float64
	GenerationMS int64
	Duration     time.Duration
	Err          error
}

// Observer receives generation lifecycle callbacks. Implementations
// must be safe for concurrent use: SegmentSynthesized fires from the
// synthesis goroutines.
type Observer interface {
	GenerationStarted(ctx context.Context, info StartInfo)
	SegmentSynthesized(ctx context.Context, info SegmentInfo)
	GenerationFinished(ctx context.Context, info FinishInfo)
}

type multiObserver []Observer

func (m multiObserver) GenerationStarted(ctx context.Context, info StartInfo) {
	for _, o := range m {
		o.GenerationStarted(ctx, info)
	}
}

func (m multiObserver) SegmentSynthesized(ctx context.Context, info SegmentInfo) {
	for _, o := range m {
		o.SegmentSynthesized(ctx, info)
	}
}

func (m multiObserver) GenerationFinished(ctx context.Context, info FinishInfo) {
	for _, o := range m {
		o.GenerationFinished(ctx, info)
	}
}

// CombineObservers fans callbacks out to every non-nil observer.
func CombineObservers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}
