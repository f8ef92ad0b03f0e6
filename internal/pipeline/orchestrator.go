package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/yoockh/madprep/internal/analysis"
	"github.com/yoockh/madprep/internal/media"
)

const instrumentationName = "github.com/yoockh/madprep/internal/pipeline"

// Deps are the external collaborators of a run.
type Deps struct {
	Ingestor    Ingestor
	Transcriber Transcriber
	Classifier  analysis.Classifier
	Feedback    FeedbackService
}

// Config bounds the blocking calls. Zero timeouts mean no limit.
type Config struct {
	ClassifyWorkers   int
	TranscribeTimeout time.Duration
	ClassifyTimeout   time.Duration
	FeedbackTimeout   time.Duration
}

// Observer is called after every state change, terminal ones included.
type Observer func(ctx context.Context, s *Session)

type Orchestrator struct {
	deps      Deps
	cfg       Config
	log       logrus.FieldLogger
	tracer    trace.Tracer
	observers []Observer

	framesClassified metric.Int64Counter
	framesDropped    metric.Int64Counter
	sessionsDone     metric.Int64Counter
}

type Option func(*Orchestrator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		log:    logrus.StandardLogger(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}

	meter := otel.Meter(instrumentationName)
	o.framesClassified = int64Counter(meter, o.log, "madprep.frames.classified")
	o.framesDropped = int64Counter(meter, o.log, "madprep.frames.dropped")
	o.sessionsDone = int64Counter(meter, o.log, "madprep.sessions.finished")
	return o
}

// int64Counter never returns nil; a counter the meter rejects is logged and
// replaced by a no-op.
func int64Counter(m metric.Meter, log logrus.FieldLogger, name string) metric.Int64Counter {
	c, err := m.Int64Counter(name)
	if err != nil {
		log.WithError(err).WithField("instrument", name).Warn("create counter")
	}
	if c == nil {
		return noop.Int64Counter{}
	}
	return c
}

// Run drives s from Idle to Complete or Failed. The returned error is the
// session's *StageError, if any. A session can be run only once; a retry
// needs a new Session. Observers passed here see only this run, after the
// orchestrator-wide ones.
func (o *Orchestrator) Run(ctx context.Context, s *Session, observers ...Observer) error {
	if s.stage != StageIdle || s.started {
		return ErrAlreadyRun
	}
	s.started = true
	s.observers = observers
	log := o.log.WithField("session_id", s.ID)

	ctx, span := o.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int("session.stride", s.Options.Stride),
	))
	defer span.End()

	if s.Options.Credential == "" {
		return o.fail(ctx, log, s, StageIdle, ErrConfiguration, errors.New("feedback service credential is missing"))
	}

	var (
		rec   Recording
		audio media.Audio
	)
	defer func() {
		if rec != nil {
			if err := rec.Close(); err != nil {
				log.WithError(err).Warn("close recording")
			}
		}
	}()

	steps := []struct {
		stage Stage
		kind  error
		run   func(ctx context.Context) error
	}{
		{StageIngesting, ErrMediaDecode, func(ctx context.Context) error {
			r, err := o.deps.Ingestor.Open(ctx, s.VideoPath)
			if err != nil {
				return err
			}
			rec = r
			return nil
		}},
		{StageExtractingAudio, ErrAudioExtraction, func(ctx context.Context) error {
			a, err := rec.ExtractAudio(ctx)
			if err != nil {
				return err
			}
			audio = a
			return nil
		}},
		{StageTranscribing, ErrTranscription, func(ctx context.Context) error {
			ctx, cancel := withTimeout(ctx, o.cfg.TranscribeTimeout)
			defer cancel()
			text, err := o.deps.Transcriber.Transcribe(ctx, audio)
			if err != nil {
				return err
			}
			s.transcript = &text
			return nil
		}},
		{StageSamplingFrames, ErrMediaDecode, func(ctx context.Context) error {
			sampler, err := analysis.NewSampler(o.deps.Classifier, s.Options.Stride,
				analysis.WithWorkers(o.cfg.ClassifyWorkers),
				analysis.WithClassifyTimeout(o.cfg.ClassifyTimeout),
				analysis.WithLogger(log),
			)
			if err != nil {
				return err
			}
			recs, stats, err := sampler.Collect(ctx, rec.Frames())
			s.stats = stats
			if err != nil {
				return err
			}
			s.records = recs
			o.framesClassified.Add(ctx, int64(stats.Records))
			o.framesDropped.Add(ctx, int64(stats.Dropped()))
			log.WithFields(logrus.Fields{
				"frames":   stats.Frames,
				"attempts": stats.Attempts,
				"records":  stats.Records,
				"dropped":  stats.Dropped(),
			}).Info("frames sampled")
			return nil
		}},
		{StageAggregating, ErrInternal, func(ctx context.Context) error {
			d := analysis.Aggregate(s.records)
			s.distribution = &d
			return nil
		}},
		{StageBuildingPayload, ErrInternal, func(ctx context.Context) error {
			p := analysis.BuildPayload(s.Question, *s.transcript, *s.distribution)
			s.payload = &p
			return nil
		}},
		{StageRequestingFeedback, ErrFeedbackService, func(ctx context.Context) error {
			ctx, cancel := withTimeout(ctx, o.cfg.FeedbackTimeout)
			defer cancel()
			text, err := o.deps.Feedback.Generate(ctx, FeedbackRequest{
				Payload:    *s.payload,
				Model:      s.Options.Model,
				Credential: s.Options.Credential,
			})
			if err != nil {
				return err
			}
			if text == "" {
				return errors.New("empty feedback")
			}
			s.feedback = &text
			return nil
		}},
	}

	for _, st := range steps {
		if err := o.step(ctx, log, s, st.stage, st.kind, st.run); err != nil {
			return err
		}
	}

	s.stage = StageComplete
	o.sessionsDone.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "complete")))
	log.Info("analysis complete")
	o.notify(ctx, s)
	return nil
}

func (o *Orchestrator) step(ctx context.Context, log logrus.FieldLogger, s *Session, stage Stage, kind error, run func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, log, s, stage, ErrAbandoned, err)
	}
	if stage != s.stage+1 {
		return o.fail(ctx, log, s, stage, ErrInternal, fmt.Errorf("illegal transition %s -> %s", s.stage, stage))
	}
	s.stage = stage
	log.WithField("stage", stage.String()).Debug("stage started")
	o.notify(ctx, s)

	sctx, span := o.tracer.Start(ctx, "pipeline."+stage.Title())
	defer span.End()

	if err := run(sctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			kind = ErrAbandoned
		}
		return o.fail(ctx, log, s, stage, kind, err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log logrus.FieldLogger, s *Session, stage Stage, kind, cause error) error {
	se := &StageError{Stage: stage, Kind: kind, Err: cause}
	s.stage = StageFailed
	s.failure = se
	o.sessionsDone.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "failed"),
		attribute.String("stage", stage.String()),
	))
	log.WithError(cause).WithField("stage", stage.String()).Error(kind.Error())
	o.notify(ctx, s)
	return se
}

func (o *Orchestrator) notify(ctx context.Context, s *Session) {
	for _, obs := range o.observers {
		obs(ctx, s)
	}
	for _, obs := range s.observers {
		obs(ctx, s)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
