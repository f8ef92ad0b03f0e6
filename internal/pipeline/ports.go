package pipeline

import (
	"context"

	"github.com/yoockh/madprep/internal/analysis"
	"github.com/yoockh/madprep/internal/media"
)

// Recording is an opened video: a decoded frame sequence plus a separable
// audio track.
type Recording interface {
	Frames() analysis.FrameSource
	ExtractAudio(ctx context.Context) (media.Audio, error)
	Close() error
}

type Ingestor interface {
	Open(ctx context.Context, path string) (Recording, error)
}

// IngestorFunc adapts a function to Ingestor.
type IngestorFunc func(ctx context.Context, path string) (Recording, error)

func (f IngestorFunc) Open(ctx context.Context, path string) (Recording, error) { return f(ctx, path) }

type Transcriber interface {
	Transcribe(ctx context.Context, audio media.Audio) (string, error)
}

// FeedbackRequest is one call to the feedback-generation service.
type FeedbackRequest struct {
	Payload    string
	Model      string
	Credential string
}

type FeedbackService interface {
	Generate(ctx context.Context, req FeedbackRequest) (string, error)
}
