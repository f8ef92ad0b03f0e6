package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/madprep/internal/analysis"
	"github.com/yoockh/madprep/internal/events"
	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/pipeline"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/storage"
	"github.com/yoockh/madprep/internal/utils"
	"github.com/yoockh/madprep/internal/workers"
)

// AllowedExtensions are the accepted recording containers.
var AllowedExtensions = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".avi": "video/x-msvideo",
}

type SubmitInput struct {
	UserID     string
	QuestionID string
	Question   string

	FileName string
	Size     int64
	File     io.Reader

	APIKey string
	Model  string
	Stride int
}

type AnalysisService interface {
	Submit(ctx context.Context, in SubmitInput) (*models.AnalysisSession, error)
	Get(ctx context.Context, userID, sessionID string) (*models.AnalysisSession, error)
	Discard(ctx context.Context, userID, sessionID string) error
	// Process runs a queued job to a terminal stage.
	Process(ctx context.Context, job workers.Job) error
}

// Runner is satisfied by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, s *pipeline.Session, observers ...pipeline.Observer) error
}

type AnalysisConfig struct {
	DefaultCredential string
	DefaultModel      string
	Stride            int
	MaxUploadBytes    int64
	SessionTTL        time.Duration
}

type analysisService struct {
	sessions  repositories.SessionRepository
	questions QuestionService
	uploads   storage.Stager
	queue     workers.Queue
	bus       events.Bus
	runner    Runner
	cfg       AnalysisConfig
	log       *logrus.Logger
	now       func() time.Time

	// per-session credentials and cancel funcs of runs in this process
	credentials sync.Map // session id -> string
	running     sync.Map // session id -> context.CancelFunc
}

func NewAnalysisService(
	sessions repositories.SessionRepository,
	questions QuestionService,
	uploads storage.Stager,
	queue workers.Queue,
	bus events.Bus,
	runner Runner,
	cfg AnalysisConfig,
	log *logrus.Logger,
) AnalysisService {
	if cfg.Stride < 1 {
		cfg.Stride = analysis.DefaultStride
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if log == nil {
		log = logrus.New()
	}
	return &analysisService{
		sessions:  sessions,
		questions: questions,
		uploads:   uploads,
		queue:     queue,
		bus:       bus,
		runner:    runner,
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *analysisService) Submit(ctx context.Context, in SubmitInput) (*models.AnalysisSession, error) {
	const op = "AnalysisService.Submit"

	if in.UserID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "unauthorized", nil)
	}
	if in.File == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file is required", nil)
	}
	ext := strings.ToLower(filepath.Ext(in.FileName))
	contentType, ok := AllowedExtensions[ext]
	if !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file must be .mp4, .mov or .avi", nil)
	}
	if s.cfg.MaxUploadBytes > 0 && in.Size > s.cfg.MaxUploadBytes {
		return nil, utils.E(utils.CodeTooLarge, op, fmt.Sprintf("file exceeds %d MB", s.cfg.MaxUploadBytes>>20), nil)
	}
	stride := in.Stride
	if stride == 0 {
		stride = s.cfg.Stride
	}
	if stride < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "stride must be positive", nil)
	}

	question, err := s.questions.Resolve(ctx, in.QuestionID, in.Question)
	if err != nil {
		return nil, err
	}

	// one live session per user
	if prev, err := s.sessions.Latest(ctx, in.UserID); err == nil {
		if err := s.discard(ctx, prev); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to discard previous session", err)
		}
	} else if !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to look up previous session", err)
	}

	sessionID := uuid.NewString()
	object := in.UserID + "/" + sessionID + ext
	var body io.Reader = in.File
	if s.cfg.MaxUploadBytes > 0 {
		body = io.LimitReader(in.File, s.cfg.MaxUploadBytes)
	}
	videoPath, err := s.uploads.Upload(ctx, object, contentType, body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store upload", err)
	}

	model := in.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}
	now := s.now()
	snap := &models.AnalysisSession{
		SessionID:    sessionID,
		UserID:       in.UserID,
		Question:     question,
		QuestionID:   strings.TrimSpace(in.QuestionID),
		Model:        model,
		Stride:       stride,
		Stage:        pipeline.StageIdle.String(),
		UploadObject: object,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Save(ctx, snap); err != nil {
		_ = s.uploads.Delete(ctx, object)
		return nil, utils.E(utils.CodeInternal, op, "failed to save session", err)
	}

	if in.APIKey != "" {
		s.credentials.Store(sessionID, in.APIKey)
	}
	job := workers.Job{
		SessionID:    sessionID,
		UserID:       in.UserID,
		Question:     question,
		VideoPath:    videoPath,
		UploadObject: object,
		Model:        model,
		Stride:       stride,
		Credential:   in.APIKey,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.credentials.Delete(sessionID)
		_ = s.sessions.Delete(ctx, sessionID)
		_ = s.uploads.Delete(ctx, object)
		if errors.Is(err, workers.ErrQueueFull) {
			return nil, utils.E(utils.CodeUnavailable, op, "analysis queue is busy, try again later", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to enqueue analysis", err)
	}

	s.publish(ctx, snap)
	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    in.UserID,
		"stride":     stride,
	}).Info("analysis submitted")
	return snap, nil
}

func (s *analysisService) Get(ctx context.Context, userID, sessionID string) (*models.AnalysisSession, error) {
	const op = "AnalysisService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	if out.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return out, nil
}

func (s *analysisService) Discard(ctx context.Context, userID, sessionID string) error {
	const op = "AnalysisService.Discard"

	snap, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if err := s.discard(ctx, snap); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to discard session", err)
	}
	return nil
}

// discard drops the snapshot. A run in this process is canceled at once;
// a run elsewhere notices the missing snapshot at its next stage boundary.
// The upload is removed here only when no run will.
func (s *analysisService) discard(ctx context.Context, snap *models.AnalysisSession) error {
	if err := s.sessions.Delete(ctx, snap.SessionID); err != nil {
		return err
	}
	s.credentials.Delete(snap.SessionID)
	if cancel, ok := s.running.Load(snap.SessionID); ok {
		cancel.(context.CancelFunc)()
	}
	if snap.Terminal() && snap.UploadObject != "" {
		if err := s.uploads.Delete(ctx, snap.UploadObject); err != nil {
			s.log.WithError(err).WithField("session_id", snap.SessionID).Warn("delete upload")
		}
	}

	if !snap.Terminal() {
		at := snap.Stage
		snap.Stage = pipeline.StageFailed.String()
		snap.Error = &models.SessionError{
			Stage:   at,
			Kind:    pipeline.ErrAbandoned.Error(),
			Message: "session discarded",
		}
		snap.UpdatedAt = s.now()
		s.publish(ctx, snap)
	}
	s.log.WithField("session_id", snap.SessionID).Info("analysis discarded")
	return nil
}

func (s *analysisService) Process(ctx context.Context, job workers.Job) error {
	const op = "AnalysisService.Process"

	log := s.log.WithField("session_id", job.SessionID)
	defer func() {
		if job.UploadObject == "" {
			return
		}
		if err := s.uploads.Delete(context.WithoutCancel(ctx), job.UploadObject); err != nil {
			log.WithError(err).Warn("delete upload")
		}
	}()

	snap, err := s.sessions.Get(ctx, job.SessionID)
	if errors.Is(err, utils.ErrNotFound) {
		log.Info("session discarded before processing")
		return nil
	}
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to load session", err)
	}

	credential := job.Credential
	if v, ok := s.credentials.LoadAndDelete(job.SessionID); ok && credential == "" {
		credential = v.(string)
	}
	if credential == "" {
		credential = s.cfg.DefaultCredential
	}

	ps := pipeline.NewSession(job.SessionID, job.Question, job.VideoPath, pipeline.Options{
		Credential: credential,
		Model:      job.Model,
		Stride:     job.Stride,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.running.Store(job.SessionID, cancel)
	defer s.running.Delete(job.SessionID)

	discarded := false
	observe := func(octx context.Context, ps *pipeline.Session) {
		if discarded {
			return
		}
		// snapshot writes must land even once the run is abandoned
		wctx := context.WithoutCancel(octx)
		applySession(snap, ps)
		snap.UpdatedAt = s.now()
		if snap.Terminal() {
			snap.UploadObject = ""
		}
		// Update never recreates a snapshot that Discard removed
		err := s.sessions.Update(wctx, snap)
		if errors.Is(err, utils.ErrNotFound) {
			discarded = true
			cancel()
			return
		}
		if err != nil {
			log.WithError(err).Warn("save snapshot")
		}
		s.publish(wctx, snap)
	}

	if err := s.runner.Run(ctx, ps, observe); err != nil {
		if discarded {
			log.Info("run abandoned after discard")
			return nil
		}
		return err
	}
	return nil
}

func (s *analysisService) publish(ctx context.Context, snap *models.AnalysisSession) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, stageEvent(snap)); err != nil {
		s.log.WithError(err).WithField("session_id", snap.SessionID).Warn("publish stage event")
	}
}
