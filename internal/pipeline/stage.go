package pipeline

import "fmt"

// Stage is a position in the analysis state machine. Stages run strictly in
// declaration order; Complete and Failed are terminal.
type Stage int

const (
	StageIdle Stage = iota
	StageIngesting
	StageExtractingAudio
	StageTranscribing
	StageSamplingFrames
	StageAggregating
	StageBuildingPayload
	StageRequestingFeedback
	StageComplete
	StageFailed
)

var stageNames = [...]string{
	StageIdle:               "idle",
	StageIngesting:          "ingesting",
	StageExtractingAudio:    "extracting_audio",
	StageTranscribing:       "transcribing",
	StageSamplingFrames:     "sampling_frames",
	StageAggregating:        "aggregating",
	StageBuildingPayload:    "building_payload",
	StageRequestingFeedback: "requesting_feedback",
	StageComplete:           "complete",
	StageFailed:             "failed",
}

var stageTitles = [...]string{
	StageIdle:               "Idle",
	StageIngesting:          "Ingesting",
	StageExtractingAudio:    "ExtractingAudio",
	StageTranscribing:       "Transcribing",
	StageSamplingFrames:     "SamplingFrames",
	StageAggregating:        "Aggregating",
	StageBuildingPayload:    "BuildingPayload",
	StageRequestingFeedback: "RequestingFeedback",
	StageComplete:           "Complete",
	StageFailed:             "Failed",
}

func (s Stage) valid() bool { return s >= StageIdle && s <= StageFailed }

// String is the wire name, e.g. "extracting_audio".
func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Title is the display name, e.g. "ExtractingAudio".
func (s Stage) Title() string {
	if !s.valid() {
		return s.String()
	}
	return stageTitles[s]
}

func (s Stage) Terminal() bool { return s == StageComplete || s == StageFailed }

// ParseStage maps a wire name back to its Stage.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return StageIdle, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Stage) UnmarshalText(b []byte) error {
	v, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
