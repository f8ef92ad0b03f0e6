package pipeline

import (
	"slices"

	"github.com/yoockh/madprep/internal/analysis"
)

// Options is the per-session configuration handed to every stage.
type Options struct {
	Credential string
	Model      string
	Stride     int
}

// Session is one analysis of one recording. Its results are written only by
// the Orchestrator, one field per completed stage; callers read them through
// the accessors.
type Session struct {
	ID        string
	Question  string
	VideoPath string
	Options   Options

	stage        Stage
	failure      *StageError
	transcript   *string
	records      []analysis.FrameEmotionRecord
	stats        analysis.SamplerStats
	distribution *analysis.Distribution
	payload      *string
	feedback     *string

	started   bool
	observers []Observer
}

// NewSession fixes the question for the lifetime of the session.
func NewSession(id, question, videoPath string, opts Options) *Session {
	if opts.Stride < 1 {
		opts.Stride = analysis.DefaultStride
	}
	return &Session{
		ID:        id,
		Question:  question,
		VideoPath: videoPath,
		Options:   opts,
		stage:     StageIdle,
	}
}

func (s *Session) Stage() Stage { return s.stage }

// Failure is set once the session is Failed.
func (s *Session) Failure() *StageError { return s.failure }

func (s *Session) Transcript() (string, bool) { return deref(s.transcript) }

// Records are the per-frame readings in frame order.
func (s *Session) Records() []analysis.FrameEmotionRecord { return slices.Clone(s.records) }

func (s *Session) SamplerStats() analysis.SamplerStats { return s.stats }

// Distribution is present from Aggregating on; it may be the no-data sentinel.
func (s *Session) Distribution() (analysis.Distribution, bool) {
	if s.distribution == nil {
		return analysis.Distribution{}, false
	}
	return *s.distribution, true
}

func (s *Session) Payload() (string, bool) { return deref(s.payload) }

func (s *Session) Feedback() (string, bool) { return deref(s.feedback) }

func deref(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}
