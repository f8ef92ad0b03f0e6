package media

import (
	"errors"
	"time"
)

const (
	SampleRateHz = 16000
	Channels     = 1
)

var (
	ErrNoVideoStream = errors.New("container has no video stream")
	ErrNoAudioStream = errors.New("container has no audio stream")
	ErrNoFrames      = errors.New("no frames decoded")
)

// Audio is a mono 16 kHz LINEAR16 WAV track.
type Audio struct {
	Data       []byte
	Path       string
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Info is what ffprobe reports about a container.
type Info struct {
	Duration  time.Duration
	FrameRate float64
	Width     int
	Height    int
	HasAudio  bool
}

func wavDuration(size, sampleRate, channels int) time.Duration {
	const header = 44
	if size <= header || sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := (size - header) / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
