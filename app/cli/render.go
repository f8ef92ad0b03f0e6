package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/yoockh/madprep/internal/analysis"
	"github.com/yoockh/madprep/internal/pipeline"
)

const barWidth = 40

type failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type result struct {
	SessionID  string                 `json:"session_id"`
	Question   string                 `json:"question"`
	Stage      string                 `json:"stage"`
	Error      *failure               `json:"error,omitempty"`
	Transcript *string                `json:"transcript,omitempty"`
	Emotions   *analysis.Distribution `json:"emotions,omitempty"`
	Frames     *analysis.SamplerStats `json:"frames,omitempty"`
	Feedback   *string                `json:"feedback,omitempty"`
}

func newResult(s *pipeline.Session) result {
	r := result{
		SessionID: s.ID,
		Question:  s.Question,
		Stage:     s.Stage().String(),
	}
	if f := s.Failure(); f != nil {
		r.Error = &failure{Stage: f.Stage.String(), Kind: f.Kind.Error(), Message: f.Cause()}
	}
	if t, ok := s.Transcript(); ok {
		r.Transcript = &t
	}
	if d, ok := s.Distribution(); ok {
		st := s.SamplerStats()
		r.Emotions = &d
		r.Frames = &st
	}
	if fb, ok := s.Feedback(); ok {
		r.Feedback = &fb
	}
	return r
}

func render(w io.Writer, r result) {
	fmt.Fprintf(w, "Question: %s\n\n", r.Question)

	if r.Transcript != nil {
		fmt.Fprintf(w, "Transcript\n%s\n\n", wrap(*r.Transcript))
	}

	if r.Emotions != nil {
		fmt.Fprintln(w, "Facial expressions")
		if r.Emotions.NoData() {
			fmt.Fprintf(w, "  %s\n", analysis.NoFacialExpressions)
		} else {
			for _, s := range r.Emotions.Shares() {
				fmt.Fprintf(w, "  %-9s %s %5.1f%%\n", s.Emotion, bar(s.Proportion), s.Proportion*100)
			}
		}
		if r.Frames != nil {
			fmt.Fprintf(w, "  (%d frames, %d sampled, %d with a face)\n",
				r.Frames.Frames, r.Frames.Attempts, r.Frames.Records)
		}
		fmt.Fprintln(w)
	}

	if r.Feedback != nil {
		fmt.Fprintf(w, "Feedback\n%s\n", *r.Feedback)
	}
	if r.Error != nil {
		fmt.Fprintf(w, "Failed while %s (%s): %s\n", r.Error.Stage, r.Error.Kind, r.Error.Message)
	}
}

func bar(p float64) string {
	n := int(p*barWidth + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("·", barWidth-n)
}

// wrap folds text at 80 columns on word boundaries.
func wrap(text string) string {
	var b strings.Builder
	col := 0
	for _, word := range strings.Fields(text) {
		if col > 0 && col+1+len(word) > 80 {
			b.WriteByte('\n')
			col = 0
		} else if col > 0 {
			b.WriteByte(' ')
			col++
		}
		b.WriteString(word)
		col += len(word)
	}
	return b.String()
}
