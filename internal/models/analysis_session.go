package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnalysisSession is the stored snapshot of one pipeline run. Snapshots are
// ephemeral and expire at ExpiresAt.
type AnalysisSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	UserID    string             `bson:"user_id" json:"user_id"`

	Question   string `bson:"question" json:"question"`
	QuestionID string `bson:"question_id,omitempty" json:"question_id,omitempty"`
	Model      string `bson:"model,omitempty" json:"model,omitempty"`
	Stride     int    `bson:"stride" json:"stride"`

	Stage string        `bson:"stage" json:"stage"` // idle|ingesting|...|complete|failed
	Error *SessionError `bson:"error,omitempty" json:"error,omitempty"`

	Transcript      *string            `bson:"transcript,omitempty" json:"transcript,omitempty"`
	Emotions        map[string]float64 `bson:"emotions,omitempty" json:"emotions,omitempty"`
	EmotionCounts   map[string]int     `bson:"emotion_counts,omitempty" json:"emotion_counts,omitempty"`
	EmotionsMessage string             `bson:"emotions_message,omitempty" json:"emotions_message,omitempty"`
	Frames          *FrameStats        `bson:"frames,omitempty" json:"frames,omitempty"`
	Feedback        *string            `bson:"feedback,omitempty" json:"feedback,omitempty"`

	// UploadObject names the stored recording; cleared once it is deleted.
	UploadObject string `bson:"upload_object,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

type SessionError struct {
	Stage   string `bson:"stage" json:"stage"`
	Kind    string `bson:"kind" json:"kind"`
	Message string `bson:"message" json:"message"`
}

type FrameStats struct {
	Decoded     int `bson:"decoded" json:"decoded"`
	Sampled     int `bson:"sampled" json:"sampled"`
	Recorded    int `bson:"recorded" json:"recorded"`
	NotDetected int `bson:"not_detected" json:"not_detected"`
	Failed      int `bson:"failed" json:"failed"`
}

func (s *AnalysisSession) Terminal() bool {
	return s.Stage == "complete" || s.Stage == "failed"
}
