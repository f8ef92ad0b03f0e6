package stt

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yoockh/madprep/internal/media"
)

type fakeProvider struct {
	inline, uri int
	gotURI      string
	err         error
}

func (f *fakeProvider) Transcribe(context.Context, []byte, string) (string, float64, error) {
	f.inline++
	return "short answer", 0.9, f.err
}

func (f *fakeProvider) TranscribeURI(_ context.Context, uri, _ string) (string, float64, error) {
	f.uri++
	f.gotURI = uri
	return "long answer", 0.8, f.err
}

func (f *fakeProvider) Close() error { return nil }

type fakeStager struct {
	objects map[string]string
	deleted []string
}

func (s *fakeStager) Upload(_ context.Context, name, _ string, r io.Reader) (string, error) {
	b, _ := io.ReadAll(r)
	s.objects[name] = string(b)
	return "gs://bucket/" + name, nil
}

func (s *fakeStager) Delete(_ context.Context, name string) error {
	s.deleted = append(s.deleted, name)
	return nil
}

func audio(d time.Duration) media.Audio {
	return media.Audio{Data: []byte("RIFF...."), SampleRate: media.SampleRateHz, Channels: 1, Duration: d}
}

func TestTranscribeShortInline(t *testing.T) {
	p := &fakeProvider{}
	st := &fakeStager{objects: map[string]string{}}
	tr := NewTranscriber(p, st, "en-US", nil)

	text, err := tr.Transcribe(context.Background(), audio(20*time.Second))
	if err != nil || text != "short answer" {
		t.Fatalf("got %q, %v", text, err)
	}
	if p.inline != 1 || p.uri != 0 || len(st.objects) != 0 {
		t.Fatalf("inline=%d uri=%d staged=%d", p.inline, p.uri, len(st.objects))
	}
}

func TestTranscribeLongStaged(t *testing.T) {
	p := &fakeProvider{}
	st := &fakeStager{objects: map[string]string{}}
	tr := NewTranscriber(p, st, "en-US", nil)

	text, err := tr.Transcribe(context.Background(), audio(3*time.Minute))
	if err != nil || text != "long answer" {
		t.Fatalf("got %q, %v", text, err)
	}
	if p.uri != 1 || !strings.HasPrefix(p.gotURI, "gs://bucket/audio/") {
		t.Fatalf("uri calls=%d uri=%q", p.uri, p.gotURI)
	}
	if len(st.deleted) != 1 {
		t.Fatalf("staged audio not removed: %v", st.deleted)
	}
}

func TestTranscribeLongWithoutStager(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTranscriber(p, nil, "", nil)
	if _, err := tr.Transcribe(context.Background(), audio(3*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if p.inline != 1 {
		t.Fatalf("inline=%d", p.inline)
	}
}

func TestTranscribeErrors(t *testing.T) {
	boom := errors.New("quota")
	p := &fakeProvider{err: boom}
	st := &fakeStager{objects: map[string]string{}}
	tr := NewTranscriber(p, st, "", nil)

	if _, err := tr.Transcribe(context.Background(), audio(3*time.Minute)); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if len(st.deleted) != 1 {
		t.Fatal("staged audio leaked on failure")
	}
	if _, err := tr.Transcribe(context.Background(), media.Audio{}); err == nil {
		t.Fatal("empty audio accepted")
	}
}

func TestJoinResults(t *testing.T) {
	res := []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "I led a team ", Confidence: 0.8}, {Transcript: "I lead a team"}}},
		{},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " of five.", Confidence: 0.6}}},
	}
	text, conf := joinResults(res)
	if text != "I led a team of five." {
		t.Fatalf("text %q", text)
	}
	if conf < 0.699 || conf > 0.701 {
		t.Fatalf("confidence %v", conf)
	}
	if text, conf := joinResults(nil); text != "" || conf != 0 {
		t.Fatalf("empty: %q %v", text, conf)
	}
}
