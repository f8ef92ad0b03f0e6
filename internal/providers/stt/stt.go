package stt

import "context"

type Provider interface {
	// Transcribe recognizes inline audio; suitable for clips up to about a minute.
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	// TranscribeURI recognizes audio already staged in object storage (gs://...).
	TranscribeURI(ctx context.Context, uri string, language string) (text string, confidence float64, err error)
	Close() error
}
