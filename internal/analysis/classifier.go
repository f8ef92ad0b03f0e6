package analysis

import (
	"context"
	"maps"
)

// Scores maps an emotion label to the probability reported by the classifier.
// Values are diagnostic only and need not sum to 1.
type Scores map[string]float64

// FaceAnalysis is the classifier's verdict for one detected face.
type FaceAnalysis struct {
	DominantEmotion string
	Scores          Scores
}

type Detection int

const (
	NotDetected Detection = iota
	Detected
)

func (d Detection) String() string {
	if d == Detected {
		return "detected"
	}
	return "not_detected"
}

// Classification is the outcome of classifying one frame. A frame without a
// usable face is a NotDetected result, never an error.
type Classification struct {
	Detection Detection
	Faces     []FaceAnalysis
}

// NoFace is the not-detected result.
func NoFace() Classification {
	return Classification{Detection: NotDetected}
}

// FacesFound builds a detected result; with no faces it degrades to NoFace.
func FacesFound(faces ...FaceAnalysis) Classification {
	if len(faces) == 0 {
		return NoFace()
	}
	return Classification{Detection: Detected, Faces: faces}
}

// Primary returns the face used for the frame's record.
//
// When several faces are reported, the first candidate wins. Recordings are
// single-speaker answers, so extra candidates are treated as detector noise
// rather than as additional people to score.
func (c Classification) Primary() (FaceAnalysis, bool) {
	if c.Detection != Detected || len(c.Faces) == 0 {
		return FaceAnalysis{}, false
	}
	return c.Faces[0], true
}

// Classifier is the external facial-emotion model, called once per sampled frame.
type Classifier interface {
	Classify(ctx context.Context, frame Frame) (Classification, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, frame Frame) (Classification, error)

func (f ClassifierFunc) Classify(ctx context.Context, frame Frame) (Classification, error) {
	return f(ctx, frame)
}

// FrameEmotionRecord is the emotion reading of one sampled frame.
type FrameEmotionRecord struct {
	Frame    int
	Dominant string
	Scores   Scores
}

func newRecord(frame int, face FaceAnalysis) FrameEmotionRecord {
	return FrameEmotionRecord{
		Frame:    frame,
		Dominant: face.DominantEmotion,
		Scores:   maps.Clone(face.Scores),
	}
}
