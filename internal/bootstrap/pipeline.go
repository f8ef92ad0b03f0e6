// Package bootstrap assembles the analysis pipeline from configuration. Both
// the HTTP server and the CLI run it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/madprep/config"
	"github.com/yoockh/madprep/internal/media"
	"github.com/yoockh/madprep/internal/pipeline"
	"github.com/yoockh/madprep/internal/providers/emotion"
	"github.com/yoockh/madprep/internal/providers/llm"
	"github.com/yoockh/madprep/internal/providers/stt"
	"github.com/yoockh/madprep/internal/storage"
)

// Pipeline owns the orchestrator and the provider clients behind it.
type Pipeline struct {
	Orchestrator *pipeline.Orchestrator
	closers      []func() error
}

func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// NewPipeline dials the speech, feedback and (when GCS_BUCKET is set) storage
// clients and wires them into an orchestrator.
func NewPipeline(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger, opts ...pipeline.Option) (*Pipeline, error) {
	p := &Pipeline{}
	fail := func(err error) (*Pipeline, error) {
		_ = p.Close()
		return nil, err
	}

	ff := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, filepath.Join(cfg.UploadDir, "work"), log)
	ingest := pipeline.IngestorFunc(func(ctx context.Context, path string) (pipeline.Recording, error) {
		rec, err := ff.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return rec, nil
	})

	speech, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		return fail(fmt.Errorf("speech client: %w", err))
	}
	p.closers = append(p.closers, speech.Close)

	var stager storage.Stager
	if cfg.GCSBucket != "" {
		gcs, err := storage.NewGCSStager(ctx, cfg.GCSBucket, "staging")
		if err != nil {
			return fail(fmt.Errorf("storage client: %w", err))
		}
		p.closers = append(p.closers, gcs.Close)
		stager = gcs
	}

	gen, err := newLLM(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	p.closers = append(p.closers, gen.Close)

	opts = append([]pipeline.Option{pipeline.WithLogger(log)}, opts...)
	p.Orchestrator = pipeline.New(pipeline.Deps{
		Ingestor:    ingest,
		Transcriber: stt.NewTranscriber(speech, stager, cfg.SpeechLanguage, log),
		Classifier:  emotion.NewDeepFace(cfg.EmotionURL),
		Feedback:    llm.NewFeedback(gen),
	}, pipeline.Config{
		ClassifyWorkers:   cfg.ClassifyWorkers,
		TranscribeTimeout: cfg.TranscribeTimeout,
		ClassifyTimeout:   cfg.ClassifyTimeout,
		FeedbackTimeout:   cfg.FeedbackTimeout,
	}, opts...)
	return p, nil
}

func newLLM(ctx context.Context, cfg *config.AppConfig) (llm.Provider, error) {
	switch cfg.LLMBackend {
	case config.LLMVertex:
		v, err := llm.NewVertexGemini(ctx, cfg.GCPProject, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			return nil, fmt.Errorf("vertex client: %w", err)
		}
		return v, nil
	case config.LLMMock:
		return llm.NewMock(), nil
	default:
		return llm.NewGeminiAPI(cfg.GoogleAPIKey, cfg.ModelName), nil
	}
}
