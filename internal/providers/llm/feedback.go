package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/madprep/internal/pipeline"
)

// Feedback adapts a Provider to the pipeline's feedback service.
type Feedback struct {
	Provider Provider
}

func NewFeedback(p Provider) *Feedback { return &Feedback{Provider: p} }

func (f *Feedback) Generate(ctx context.Context, req pipeline.FeedbackRequest) (string, error) {
	text, err := f.Provider.Generate(ctx, Request{
		System: InterviewerPrompt(),
		Prompt: UserPrompt(req.Payload),
		Model:  req.Model,
		APIKey: req.Credential,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("model returned empty text")
	}
	return text, nil
}
