package analysis

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultStride = 10

// SamplerStats counts what happened to the frames a sampler walked.
type SamplerStats struct {
	Frames      int `json:"frames"`
	Attempts    int `json:"attempts"`
	Records     int `json:"records"`
	NotDetected int `json:"not_detected"`
	Failed      int `json:"failed"`
}

// Dropped is the number of sampled frames that produced no record.
func (s SamplerStats) Dropped() int { return s.NotDetected + s.Failed }

type outcome int

const (
	outcomeRecorded outcome = iota
	outcomeNotDetected
	outcomeFailed
)

// Sampler classifies every Kth frame of a recording.
type Sampler struct {
	classifier Classifier
	stride     int
	workers    int
	timeout    time.Duration
	log        logrus.FieldLogger
}

type SamplerOption func(*Sampler)

// WithWorkers bounds how many classifications Collect runs at once.
func WithWorkers(n int) SamplerOption {
	return func(s *Sampler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClassifyTimeout caps each classifier call.
func WithClassifyTimeout(d time.Duration) SamplerOption {
	return func(s *Sampler) { s.timeout = d }
}

func WithLogger(l logrus.FieldLogger) SamplerOption {
	return func(s *Sampler) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSampler(c Classifier, stride int, opts ...SamplerOption) (*Sampler, error) {
	if c == nil {
		return nil, errors.New("sampler: classifier is required")
	}
	if stride < 1 {
		return nil, errors.New("sampler: stride must be >= 1")
	}
	s := &Sampler{
		classifier: c,
		stride:     stride,
		workers:    1,
		log:        logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Sampler) Stride() int { return s.stride }

// Records lazily walks src and yields one record per sampled frame that the
// classifier could read. Frames the classifier rejects are skipped. The
// sequence consumes src, so it can be ranged over only once. stats may be nil.
func (s *Sampler) Records(ctx context.Context, src FrameSource, stats *SamplerStats) iter.Seq[FrameEmotionRecord] {
	if stats == nil {
		stats = &SamplerStats{}
	}
	return func(yield func(FrameEmotionRecord) bool) {
		n := 0
		for ctx.Err() == nil {
			f, ok := src.Next()
			if !ok {
				return
			}
			n++
			stats.Frames++
			if n%s.stride != 0 {
				continue
			}
			f.Index = n
			stats.Attempts++
			rec, out := s.classify(ctx, f)
			s.count(stats, out)
			if out != outcomeRecorded {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Collect samples the whole of src, fanning classifications out to the
// configured number of workers. Records come back ordered by frame index.
// It fails only when src breaks or ctx ends, never because a frame could
// not be classified.
func (s *Sampler) Collect(ctx context.Context, src FrameSource) ([]FrameEmotionRecord, SamplerStats, error) {
	var stats SamplerStats

	if s.workers <= 1 {
		var out []FrameEmotionRecord
		for rec := range s.Records(ctx, src, &stats) {
			out = append(out, rec)
		}
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		return out, stats, src.Err()
	}

	var (
		mu  sync.Mutex
		out []FrameEmotionRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	n := 0
	for gctx.Err() == nil {
		f, ok := src.Next()
		if !ok {
			break
		}
		n++
		stats.Frames++
		if n%s.stride != 0 {
			continue
		}
		f.Index = n
		stats.Attempts++
		g.Go(func() error {
			rec, res := s.classify(gctx, f)
			mu.Lock()
			defer mu.Unlock()
			s.count(&stats, res)
			if res == outcomeRecorded {
				out = append(out, rec)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	if err := src.Err(); err != nil {
		return nil, stats, err
	}
	slices.SortFunc(out, func(a, b FrameEmotionRecord) int { return a.Frame - b.Frame })
	return out, stats, nil
}

func (s *Sampler) classify(ctx context.Context, f Frame) (FrameEmotionRecord, outcome) {
	cctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	c, err := s.classifier.Classify(cctx, f)
	if err != nil {
		s.log.WithError(err).WithField("frame", f.Index).Debug("frame classification failed")
		return FrameEmotionRecord{}, outcomeFailed
	}
	face, ok := c.Primary()
	if !ok {
		return FrameEmotionRecord{}, outcomeNotDetected
	}
	if face.DominantEmotion == "" {
		s.log.WithField("frame", f.Index).Debug("classifier returned no dominant emotion")
		return FrameEmotionRecord{}, outcomeFailed
	}
	return newRecord(f.Index, face), outcomeRecorded
}

func (s *Sampler) count(stats *SamplerStats, o outcome) {
	switch o {
	case outcomeRecorded:
		stats.Records++
	case outcomeNotDetected:
		stats.NotDetected++
	default:
		stats.Failed++
	}
}
