package analysis

import (
	"errors"
	"os"
)

// Frame is one decoded video frame. Index is 1-based in decode order.
type Frame struct {
	Index int
	Data  []byte // encoded image, JPEG in practice
	Path  string // used when Data is nil
}

// Bytes returns the encoded image, reading it from Path on demand.
func (f Frame) Bytes() ([]byte, error) {
	if f.Data != nil {
		return f.Data, nil
	}
	if f.Path == "" {
		return nil, errors.New("frame has neither data nor path")
	}
	return os.ReadFile(f.Path)
}

// FrameSource walks a decoded frame sequence once, front to back.
// Next reports false when the sequence is exhausted or broken; Err tells which.
type FrameSource interface {
	Next() (Frame, bool)
	Err() error
}

type sliceSource struct {
	frames []Frame
	pos    int
}

// NewSliceSource serves frames already held in memory.
func NewSliceSource(frames []Frame) FrameSource {
	return &sliceSource{frames: frames}
}

func (s *sliceSource) Next() (Frame, bool) {
	if s.pos >= len(s.frames) {
		return Frame{}, false
	}
	f := s.frames[s.pos]
	s.pos++
	return f, true
}

func (s *sliceSource) Err() error { return nil }
