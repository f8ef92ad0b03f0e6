package services_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/madprep/internal/analysis"
	"github.com/yoockh/madprep/internal/events"
	"github.com/yoockh/madprep/internal/media"
	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/pipeline"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/repositories/memory"
	"github.com/yoockh/madprep/internal/services"
	"github.com/yoockh/madprep/internal/storage"
	"github.com/yoockh/madprep/internal/utils"
	"github.com/yoockh/madprep/internal/workers"
)

type captureQueue struct {
	mu   sync.Mutex
	jobs []workers.Job
	err  error
}

func (q *captureQueue) Enqueue(_ context.Context, j workers.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, j)
	return nil
}

func (q *captureQueue) last() workers.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[len(q.jobs)-1]
}

type recording struct{ frames int }

func (r recording) Frames() analysis.FrameSource {
	fs := make([]analysis.Frame, r.frames)
	for i := range fs {
		fs[i] = analysis.Frame{Index: i + 1, Data: []byte{1}}
	}
	return analysis.NewSliceSource(fs)
}

func (recording) ExtractAudio(context.Context) (media.Audio, error) {
	return media.Audio{Data: []byte("RIFF")}, nil
}

func (recording) Close() error { return nil }

type transcriber func(ctx context.Context) (string, error)

func (t transcriber) Transcribe(ctx context.Context, _ media.Audio) (string, error) { return t(ctx) }

type feedback struct{ got pipeline.FeedbackRequest }

func (f *feedback) Generate(_ context.Context, req pipeline.FeedbackRequest) (string, error) {
	f.got = req
	return "Keep eye contact.", nil
}

type fixture struct {
	svc      services.AnalysisService
	sessions interface {
		Get(context.Context, string) (*models.AnalysisSession, error)
	}
	queue    *captureQueue
	bus      *events.MemoryBus
	feedback *feedback
	dir      string
}

func newFixture(t *testing.T, credential string, tr transcriber) *fixture {
	t.Helper()
	return newFixtureWith(t, credential, tr, nil)
}

// newFixtureWith lets wrap decorate the session store the service uses.
func newFixtureWith(t *testing.T, credential string, tr transcriber, wrap func(repositories.SessionRepository) repositories.SessionRepository) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	dir := t.TempDir()
	uploads, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil {
		tr = func(context.Context) (string, error) { return "I ship reliable systems.", nil }
	}
	fb := &feedback{}
	orch := pipeline.New(pipeline.Deps{
		Ingestor: pipeline.IngestorFunc(func(context.Context, string) (pipeline.Recording, error) {
			return recording{frames: 40}, nil
		}),
		Transcriber: tr,
		Classifier: analysis.ClassifierFunc(func(_ context.Context, f analysis.Frame) (analysis.Classification, error) {
			label := "neutral"
			if f.Index%20 == 0 {
				label = "happy"
			}
			return analysis.FacesFound(analysis.FaceAnalysis{DominantEmotion: label}), nil
		}),
		Feedback: fb,
	}, pipeline.Config{ClassifyWorkers: 2}, pipeline.WithLogger(log))

	questions := services.NewQuestionService(memory.NewQuestionRepo())
	if err := questions.SeedDefaults(context.Background()); err != nil {
		t.Fatal(err)
	}
	sessions := memory.NewSessionRepo()
	var store repositories.SessionRepository = sessions
	if wrap != nil {
		store = wrap(sessions)
	}
	q := &captureQueue{}
	bus := events.NewMemoryBus()
	svc := services.NewAnalysisService(store, questions, uploads, q, bus, orch, services.AnalysisConfig{
		DefaultCredential: credential,
		DefaultModel:      "gemini-2.0-flash",
		Stride:            10,
		MaxUploadBytes:    1 << 20,
		SessionTTL:        time.Hour,
	}, log)
	return &fixture{svc: svc, sessions: sessions, queue: q, bus: bus, feedback: fb, dir: dir}
}

func upload(user string) services.SubmitInput {
	return services.SubmitInput{
		UserID:   user,
		Question: "Why should we hire you?",
		FileName: "answer.MP4",
		Size:     5,
		File:     strings.NewReader("video"),
	}
}

func TestSubmitAndProcess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "server-key", nil)

	snap, err := f.svc.Submit(ctx, upload("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Stage != "idle" || snap.Stride != 10 || snap.Model != "gemini-2.0-flash" {
		t.Fatalf("snapshot %+v", snap)
	}
	job := f.queue.last()
	if _, err := os.Stat(job.VideoPath); err != nil {
		t.Fatalf("upload not stored: %v", err)
	}

	sub, _ := f.bus.Subscribe(ctx, snap.SessionID)
	defer sub.Close()

	if err := f.svc.Process(ctx, job); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Get(ctx, "u1", snap.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != "complete" || got.Feedback == nil || *got.Feedback != "Keep eye contact." {
		t.Fatalf("snapshot %+v", got)
	}
	if got.Emotions["happy"] != 0.5 || got.Emotions["neutral"] != 0.5 {
		t.Fatalf("emotions %v", got.Emotions)
	}
	if got.Frames == nil || got.Frames.Sampled != 4 || got.Frames.Recorded != 4 {
		t.Fatalf("frames %+v", got.Frames)
	}
	if f.feedback.got.Credential != "server-key" {
		t.Fatalf("credential %q", f.feedback.got.Credential)
	}
	if _, err := os.Stat(job.VideoPath); !os.IsNotExist(err) {
		t.Fatal("upload kept after a terminal stage")
	}

	var stages []string
	for len(sub.Events()) > 0 {
		stages = append(stages, (<-sub.Events()).Stage)
	}
	if len(stages) != 8 || stages[0] != "ingesting" || stages[7] != "complete" {
		t.Fatalf("events %v", stages)
	}
}

func TestSubmitUsesOwnCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "server-key", nil)
	in := upload("u1")
	in.APIKey = "user-key"
	if _, err := f.svc.Submit(ctx, in); err != nil {
		t.Fatal(err)
	}
	job := f.queue.last()
	job.Credential = "" // as read back from a Redis stream
	if err := f.svc.Process(ctx, job); err != nil {
		t.Fatal(err)
	}
	if f.feedback.got.Credential != "user-key" {
		t.Fatalf("credential %q", f.feedback.got.Credential)
	}
}

func TestProcessWithoutCredentialFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", nil)
	snap, err := f.svc.Submit(ctx, upload("u1"))
	if err != nil {
		t.Fatal(err)
	}
	err = f.svc.Process(ctx, f.queue.last())
	if !errors.Is(err, pipeline.ErrConfiguration) {
		t.Fatalf("got %v", err)
	}
	got, _ := f.svc.Get(ctx, "u1", snap.SessionID)
	if got.Stage != "failed" || got.Error == nil || got.Error.Kind != pipeline.ErrConfiguration.Error() {
		t.Fatalf("snapshot %+v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "k", nil)

	cases := map[string]struct {
		mutate func(in *services.SubmitInput)
		code   utils.Code
	}{
		"extension": {func(in *services.SubmitInput) { in.FileName = "answer.mkv" }, utils.CodeInvalidArgument},
		"too large": {func(in *services.SubmitInput) { in.Size = 2 << 20 }, utils.CodeTooLarge},
		"question":  {func(in *services.SubmitInput) { in.Question = "  " }, utils.CodeInvalidArgument},
		"stride":    {func(in *services.SubmitInput) { in.Stride = -1 }, utils.CodeInvalidArgument},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := upload("u1")
			tc.mutate(&in)
			_, err := f.svc.Submit(ctx, in)
			if !utils.IsCode(err, tc.code) {
				t.Fatalf("got %v", err)
			}
		})
	}

	in := upload("u1")
	in.Question = ""
	in.QuestionID = "does-not-exist"
	if _, err := f.svc.Submit(ctx, in); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "k", nil)
	f.queue.err = workers.ErrQueueFull
	if _, err := f.svc.Submit(ctx, upload("u1")); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("got %v", err)
	}
	entries, _ := os.ReadDir(f.dir + "/u1")
	if len(entries) != 0 {
		t.Fatalf("upload left behind: %v", entries)
	}
}

func TestNewSubmissionDiscardsPrevious(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "k", nil)

	first, err := f.svc.Submit(ctx, upload("u1"))
	if err != nil {
		t.Fatal(err)
	}
	firstJob := f.queue.last()
	if _, err := f.svc.Submit(ctx, upload("u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Get(ctx, "u1", first.SessionID); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("previous session still visible: %v", err)
	}

	// the worker picks the stale job up later
	if err := f.svc.Process(ctx, firstJob); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(firstJob.VideoPath); !os.IsNotExist(err) {
		t.Fatal("stale upload not removed")
	}
	if f.feedback.got.Payload != "" {
		t.Fatal("stale job was analysed")
	}
}

func TestGetOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "k", nil)
	snap, _ := f.svc.Submit(ctx, upload("u1"))
	if _, err := f.svc.Get(ctx, "u2", snap.SessionID); !utils.IsCode(err, utils.CodeForbidden) {
		t.Fatalf("got %v", err)
	}
	if err := f.svc.Discard(ctx, "u2", snap.SessionID); !utils.IsCode(err, utils.CodeForbidden) {
		t.Fatalf("got %v", err)
	}
}

func TestDiscardDuringRun(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	f := newFixture(t, "k", func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})

	snap, err := f.svc.Submit(ctx, upload("u1"))
	if err != nil {
		t.Fatal(err)
	}
	sub, _ := f.bus.Subscribe(ctx, snap.SessionID)
	defer sub.Close()

	done := make(chan error, 1)
	go func() { done <- f.svc.Process(ctx, f.queue.last()) }()

	<-started
	if err := f.svc.Discard(ctx, "u1", snap.SessionID); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("process: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run not abandoned")
	}
	if _, err := f.sessions.Get(ctx, snap.SessionID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("snapshot resurrected: %v", err)
	}

	var last events.Event
	for len(sub.Events()) > 0 {
		last = <-sub.Events()
	}
	if !last.Terminal || last.Error == nil || last.Error.Kind != pipeline.ErrAbandoned.Error() {
		t.Fatalf("last event %+v", last)
	}
}

// racingStore runs onGet once, right after the first Get it serves after
// being armed.
type racingStore struct {
	repositories.SessionRepository
	mu    sync.Mutex
	armed bool
	onGet func()
}

func (r *racingStore) Get(ctx context.Context, id string) (*models.AnalysisSession, error) {
	out, err := r.SessionRepository.Get(ctx, id)
	r.mu.Lock()
	fire := r.armed
	r.armed = false
	r.mu.Unlock()
	if fire {
		r.onGet()
	}
	return out, err
}

func (r *racingStore) arm() {
	r.mu.Lock()
	r.armed = true
	r.mu.Unlock()
}

func TestDiscardBetweenLoadAndWriteStaysDiscarded(t *testing.T) {
	ctx := context.Background()
	var (
		svc   services.AnalysisService
		store *racingStore
	)
	f := newFixtureWith(t, "k", nil, func(inner repositories.SessionRepository) repositories.SessionRepository {
		store = &racingStore{SessionRepository: inner}
		return store
	})
	svc = f.svc

	snap, err := svc.Submit(ctx, upload("u1"))
	if err != nil {
		t.Fatal(err)
	}
	var discardErr error
	store.onGet = func() { discardErr = svc.Discard(ctx, "u1", snap.SessionID) }
	store.arm()

	if err := svc.Process(ctx, f.queue.last()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if discardErr != nil {
		t.Fatalf("discard: %v", discardErr)
	}
	if got, err := f.sessions.Get(ctx, snap.SessionID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("discarded session came back: %+v %v", got, err)
	}
	if f.feedback.got.Payload != "" {
		t.Fatal("feedback requested for a discarded session")
	}
}
