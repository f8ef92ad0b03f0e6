package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yoockh/madprep/internal/api/handlers"
	"github.com/yoockh/madprep/internal/events"
	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/repositories/memory"
	"github.com/yoockh/madprep/internal/services"
	"github.com/yoockh/madprep/internal/utils"
	"github.com/yoockh/madprep/internal/workers"
)

const sid = "3f1c7c55-7f0e-4d3b-9a51-6c1f2a4b8e01"

type fakeAnalysis struct {
	mu        sync.Mutex
	in        services.SubmitInput
	body      string
	stage     string
	discarded string
	submitErr error
}

func (f *fakeAnalysis) Submit(_ context.Context, in services.SubmitInput) (*models.AnalysisSession, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	b, _ := io.ReadAll(in.File)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = in
	f.body = string(b)
	return &models.AnalysisSession{SessionID: sid, UserID: in.UserID, Question: in.Question, Stage: "idle"}, nil
}

func (f *fakeAnalysis) Get(_ context.Context, userID, sessionID string) (*models.AnalysisSession, error) {
	if sessionID != sid || userID != "u1" {
		return nil, utils.E(utils.CodeNotFound, "fake.Get", "session not found", nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.AnalysisSession{SessionID: sid, UserID: userID, Stage: f.stage}, nil
}

func (f *fakeAnalysis) Discard(_ context.Context, _, sessionID string) error {
	f.discarded = sessionID
	return nil
}

func (f *fakeAnalysis) Process(context.Context, workers.Job) error { return nil }

func (f *fakeAnalysis) setStage(s string) {
	f.mu.Lock()
	f.stage = s
	f.mu.Unlock()
}

func newRouter(svc services.AnalysisService, qs services.QuestionService, bus events.Bus) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-User-Id"); uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	})

	ah := handlers.NewAnalysisHandler(svc, 1<<20)
	r.POST("/analysis", ah.Submit)
	r.GET("/analysis/:session_id", ah.Get)
	r.DELETE("/analysis/:session_id", ah.Discard)

	if qs != nil {
		qh := handlers.NewQuestionHandler(qs)
		r.GET("/questions", qh.List)
		r.POST("/questions", qh.Create)
	}
	if bus != nil {
		r.GET("/ws/analysis/:session_id", handlers.NewWSHandler(svc, bus).AnalysisWS)
	}
	return r
}

func multipartBody(t *testing.T, fields map[string]string, file string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if file != "" {
		fw, err := w.CreateFormFile("file", "answer.mp4")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(file))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.APIError {
	t.Helper()
	var ae handlers.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &ae); err != nil {
		t.Fatalf("error body %q: %v", rec.Body.String(), err)
	}
	return ae
}

func TestSubmitAccepted(t *testing.T) {
	svc := &fakeAnalysis{}
	r := newRouter(svc, nil, nil)

	body, ct := multipartBody(t, map[string]string{
		"question": "Tell me about yourself.",
		"api_key":  " key ",
		"model":    "gemini-2.0-flash",
		"stride":   "5",
	}, "video-bytes")
	req := httptest.NewRequest(http.MethodPost, "/analysis", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp handlers.SubmitAnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != sid || resp.Stage != "idle" {
		t.Fatalf("resp = %+v", resp)
	}
	if svc.in.UserID != "u1" || svc.in.Stride != 5 || svc.in.APIKey != "key" || svc.in.FileName != "answer.mp4" {
		t.Fatalf("input = %+v", svc.in)
	}
	if svc.body != "video-bytes" {
		t.Fatalf("body = %q", svc.body)
	}
}

func TestSubmitRejects(t *testing.T) {
	r := newRouter(&fakeAnalysis{}, nil, nil)

	cases := []struct {
		name   string
		fields map[string]string
		file   string
		user   string
		status int
	}{
		{"no user", nil, "x", "", http.StatusUnauthorized},
		{"no file", map[string]string{"question": "q"}, "", "u1", http.StatusBadRequest},
		{"bad stride", map[string]string{"stride": "0"}, "x", "u1", http.StatusBadRequest},
		{"stride not a number", map[string]string{"stride": "ten"}, "x", "u1", http.StatusBadRequest},
		{"too large", nil, strings.Repeat("a", 3<<20), "u1", http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.fields, tc.file)
			req := httptest.NewRequest(http.MethodPost, "/analysis", body)
			req.Header.Set("Content-Type", ct)
			if tc.user != "" {
				req.Header.Set("X-User-Id", tc.user)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if ae := decodeError(t, rec); ae.Code == "" {
				t.Fatalf("missing error code")
			}
		})
	}
}

func TestSubmitQueueBusyAdvertisesRetry(t *testing.T) {
	svc := &fakeAnalysis{submitErr: utils.E(utils.CodeUnavailable, "fake.Submit", "analysis queue is busy", nil)}
	r := newRouter(svc, nil, nil)

	body, ct := multipartBody(t, nil, "x")
	req := httptest.NewRequest(http.MethodPost, "/analysis", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d retry-after=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	r := newRouter(&fakeAnalysis{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/analysis/not-a-uuid", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != utils.CodeInvalidArgument {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetAndDiscard(t *testing.T) {
	svc := &fakeAnalysis{stage: "transcribing"}
	r := newRouter(svc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/analysis/"+sid, nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"stage":"transcribing"`) {
		t.Fatalf("get = %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/analysis/"+sid, nil)
	req.Header.Set("X-User-Id", "u2")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != utils.CodeNotFound {
		t.Fatalf("foreign get = %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/analysis/"+sid, nil)
	req.Header.Set("X-User-Id", "u1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || svc.discarded != sid {
		t.Fatalf("discard = %d discarded=%q", rec.Code, svc.discarded)
	}
}

func TestQuestions(t *testing.T) {
	qs := services.NewQuestionService(memory.NewQuestionRepo())
	if err := qs.SeedDefaults(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := newRouter(&fakeAnalysis{}, qs, nil)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/questions", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`{"text":"Why this team?","category":"motivation","tags":["culture"]}`); rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	if rec := post(`{"text":"why this team?"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d %s", rec.Code, rec.Body.String())
	}
	if rec := post(`{"category":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing text = %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/questions", nil))
	var list struct {
		Questions []models.Question `json:"questions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Questions) != len(services.DefaultQuestions)+1 {
		t.Fatalf("questions = %d", len(list.Questions))
	}
}

func TestAnalysisWSStreamsUntilTerminal(t *testing.T) {
	svc := &fakeAnalysis{stage: "transcribing"}
	bus := events.NewMemoryBus()
	srv := httptest.NewServer(newRouter(svc, nil, bus))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analysis/" + sid
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User-Id": {"u1"}})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	type msg struct {
		Type    string                  `json:"type"`
		Event   *events.Event           `json:"event"`
		Session *models.AnalysisSession `json:"session"`
	}
	read := func() msg {
		t.Helper()
		var m msg
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatal(err)
		}
		return m
	}

	if m := read(); m.Type != "snapshot" || m.Session.Stage != "transcribing" {
		t.Fatalf("first = %+v", m)
	}

	ctx := context.Background()
	_ = bus.Publish(ctx, events.Event{Type: events.TypeStage, SessionID: sid, Stage: "sampling_frames"})
	if m := read(); m.Event == nil || m.Event.Stage != "sampling_frames" {
		t.Fatalf("event = %+v", m)
	}

	svc.setStage("complete")
	_ = bus.Publish(ctx, events.Event{Type: events.TypeStage, SessionID: sid, Stage: "complete", Terminal: true})
	if m := read(); m.Event == nil || !m.Event.Terminal {
		t.Fatalf("terminal = %+v", m)
	}
	if m := read(); m.Type != "snapshot" || m.Session.Stage != "complete" {
		t.Fatalf("final = %+v", m)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("close err = %v", err)
	}
}

func TestAnalysisWSRejectsForeignSession(t *testing.T) {
	srv := httptest.NewServer(newRouter(&fakeAnalysis{}, nil, events.NewMemoryBus()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analysis/" + sid
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User-Id": {"u2"}})
	if err == nil {
		t.Fatal("dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resp = %+v", resp)
	}
}
