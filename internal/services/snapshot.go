package services

import (
	"github.com/yoockh/madprep/internal/analysis"
	"github.com/yoockh/madprep/internal/events"
	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/pipeline"
)

// applySession copies the results a run has produced so far onto its snapshot.
func applySession(snap *models.AnalysisSession, ps *pipeline.Session) {
	snap.Stage = ps.Stage().String()

	if f := ps.Failure(); f != nil {
		snap.Error = &models.SessionError{
			Stage:   f.Stage.String(),
			Kind:    f.Kind.Error(),
			Message: f.Cause(),
		}
	}
	if t, ok := ps.Transcript(); ok {
		snap.Transcript = &t
	}
	if d, ok := ps.Distribution(); ok {
		if d.NoData() {
			snap.Emotions = nil
			snap.EmotionCounts = nil
			snap.EmotionsMessage = analysis.NoFacialExpressions
		} else {
			snap.Emotions = d.Chart()
			snap.EmotionCounts = d.Counts()
			snap.EmotionsMessage = ""
		}
		st := ps.SamplerStats()
		snap.Frames = &models.FrameStats{
			Decoded:     st.Frames,
			Sampled:     st.Attempts,
			Recorded:    st.Records,
			NotDetected: st.NotDetected,
			Failed:      st.Failed,
		}
	}
	if fb, ok := ps.Feedback(); ok {
		snap.Feedback = &fb
	}
}

func stageEvent(snap *models.AnalysisSession) events.Event {
	return events.Event{
		Type:      events.TypeStage,
		SessionID: snap.SessionID,
		Stage:     snap.Stage,
		Terminal:  snap.Terminal(),
		Error:     snap.Error,
		At:        snap.UpdatedAt,
	}
}
