package workers

import (
	"context"
	"errors"
	"strconv"
)

var ErrQueueFull = errors.New("job queue is full")

// Job asks a worker to run one analysis session.
type Job struct {
	SessionID    string
	UserID       string
	Question     string
	VideoPath    string
	UploadObject string
	Model        string
	Stride       int
	// Credential travels only through in-process queues.
	Credential string
}

type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

func (j Job) fields() map[string]any {
	return map[string]any{
		"session_id":    j.SessionID,
		"user_id":       j.UserID,
		"question":      j.Question,
		"video_path":    j.VideoPath,
		"upload_object": j.UploadObject,
		"model":         j.Model,
		"stride":        strconv.Itoa(j.Stride),
	}
}

func jobFromFields(values map[string]any) (Job, error) {
	getStr := func(k string) string {
		v, ok := values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}
	j := Job{
		SessionID:    getStr("session_id"),
		UserID:       getStr("user_id"),
		Question:     getStr("question"),
		VideoPath:    getStr("video_path"),
		UploadObject: getStr("upload_object"),
		Model:        getStr("model"),
	}
	if j.SessionID == "" || j.VideoPath == "" {
		return Job{}, errors.New("job is missing session_id or video_path")
	}
	j.Stride, _ = strconv.Atoi(getStr("stride"))
	return j, nil
}
