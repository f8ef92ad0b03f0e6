package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) config(language string) *speechpb.RecognitionConfig {
	// language example: "en-US", "id-ID"
	if language == "" {
		language = "en-US"
	}
	return &speechpb.RecognitionConfig{
		Encoding:                   g.Encoding,
		SampleRateHertz:            g.SampleRateHz,
		AudioChannelCount:          1,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
}

func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: g.config(language),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", 0, err
	}
	text, conf := joinResults(resp.Results)
	return text, conf, nil
}

func (g *GoogleSpeech) TranscribeURI(ctx context.Context, uri string, language string) (string, float64, error) {
	op, err := g.c.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: g.config(language),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: uri},
		},
	})
	if err != nil {
		return "", 0, err
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return "", 0, err
	}
	text, conf := joinResults(resp.Results)
	return text, conf, nil
}

// joinResults stitches consecutive result segments using each one's top
// alternative. Confidence is the mean over segments that report one.
func joinResults(results []*speechpb.SpeechRecognitionResult) (string, float64) {
	var (
		parts []string
		sum   float64
		n     int
	)
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
		}
		if alt.Confidence > 0 {
			sum += float64(alt.Confidence)
			n++
		}
	}
	if n == 0 {
		return strings.Join(parts, " "), 0
	}
	return strings.Join(parts, " "), sum / float64(n)
}
