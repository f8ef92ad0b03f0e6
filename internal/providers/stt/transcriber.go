package stt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/madprep/internal/media"
	"github.com/yoockh/madprep/internal/storage"
)

// InlineLimit is the longest clip sent inline to Recognize.
const InlineLimit = 55 * time.Second

// Transcriber turns an extracted audio track into text. Clips longer than
// InlineLimit are staged in object storage and recognized asynchronously when
// a Stager is configured.
type Transcriber struct {
	Provider Provider
	Stager   storage.Stager
	Language string
	Logger   *logrus.Logger
}

func NewTranscriber(p Provider, stager storage.Stager, language string, l *logrus.Logger) *Transcriber {
	if l == nil {
		l = logrus.New()
	}
	return &Transcriber{Provider: p, Stager: stager, Language: language, Logger: l}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio media.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("transcribe: empty audio")
	}

	if audio.Duration <= InlineLimit || t.Stager == nil {
		text, conf, err := t.Provider.Transcribe(ctx, audio.Data, t.Language)
		if err != nil {
			return "", fmt.Errorf("recognize: %w", err)
		}
		t.log(audio, conf, "inline")
		return text, nil
	}

	object := "audio/" + uuid.NewString() + ".wav"
	uri, err := t.Stager.Upload(ctx, object, "audio/wav", bytes.NewReader(audio.Data))
	if err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	defer func() {
		// ctx may already be done; cleanup still has to reach the bucket
		if err := t.Stager.Delete(context.WithoutCancel(ctx), object); err != nil {
			t.Logger.WithError(err).WithField("object", object).Warn("delete staged audio")
		}
	}()

	text, conf, err := t.Provider.TranscribeURI(ctx, uri, t.Language)
	if err != nil {
		return "", fmt.Errorf("long running recognize: %w", err)
	}
	t.log(audio, conf, "long_running")
	return text, nil
}

func (t *Transcriber) log(a media.Audio, conf float64, mode string) {
	t.Logger.WithFields(logrus.Fields{
		"mode":       mode,
		"duration":   a.Duration.String(),
		"confidence": conf,
	}).Debug("audio transcribed")
}
