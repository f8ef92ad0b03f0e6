package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/madprep/internal/analysis"
)

// FFmpeg decodes recordings with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	Bin     string
	Probe   string
	WorkDir string
	// Width scales frames down before classification; 0 keeps the source size.
	Width       int
	JPEGQuality int

	Logger *logrus.Logger
}

func NewFFmpeg(bin, probe, workDir string, l *logrus.Logger) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if probe == "" {
		probe = "ffprobe"
	}
	if l == nil {
		l = logrus.New()
	}
	return &FFmpeg{Bin: bin, Probe: probe, WorkDir: workDir, Width: 640, JPEGQuality: 3, Logger: l}
}

// Recording is an opened container whose frames have been decoded into a
// private temp dir. Close removes the dir.
type Recording struct {
	ff     *FFmpeg
	src    string
	dir    string
	frames []string
	info   Info
}

// Open probes path and decodes every video frame to JPEG.
func (f *FFmpeg) Open(ctx context.Context, path string) (*Recording, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}

	info, err := f.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	if f.WorkDir != "" {
		if err := os.MkdirAll(f.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(f.WorkDir, "madprep-frames-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	args := []string{"-v", "error", "-i", path, "-map", "0:v:0", "-vsync", "0"}
	if f.Width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale='min(%d,iw)':-2", f.Width))
	}
	if f.JPEGQuality > 0 {
		args = append(args, "-q:v", strconv.Itoa(f.JPEGQuality))
	}
	args = append(args, filepath.Join(dir, "frame_%07d.jpg"))

	if err := f.run(ctx, f.Bin, args...); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("decode frames: %w", err)
	}

	frames, err := listFrames(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if len(frames) == 0 {
		_ = os.RemoveAll(dir)
		return nil, ErrNoFrames
	}

	f.Logger.WithFields(logrus.Fields{
		"path":     filepath.Base(path),
		"frames":   len(frames),
		"fps":      info.FrameRate,
		"duration": info.Duration.String(),
	}).Debug("recording decoded")

	return &Recording{ff: f, src: path, dir: dir, frames: frames, info: info}, nil
}

func (r *Recording) Info() Info { return r.info }

func (r *Recording) FrameCount() int { return len(r.frames) }

// Frames returns a fresh single-pass walk over the decoded frames.
func (r *Recording) Frames() analysis.FrameSource { return newDirSource(r.frames) }

// ExtractAudio writes the audio track as mono 16 kHz LINEAR16 WAV.
func (r *Recording) ExtractAudio(ctx context.Context) (Audio, error) {
	if !r.info.HasAudio {
		return Audio{}, ErrNoAudioStream
	}
	out := filepath.Join(r.dir, "audio.wav")
	err := r.ff.run(ctx, r.ff.Bin,
		"-v", "error", "-y", "-i", r.src,
		"-vn", "-ac", strconv.Itoa(Channels), "-ar", strconv.Itoa(SampleRateHz),
		"-c:a", "pcm_s16le", out,
	)
	if err != nil {
		return Audio{}, fmt.Errorf("extract audio: %w", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return Audio{}, fmt.Errorf("read audio: %w", err)
	}
	return Audio{
		Data:       data,
		Path:       out,
		SampleRate: SampleRateHz,
		Channels:   Channels,
		Duration:   wavDuration(len(data), SampleRateHz, Channels),
	}, nil
}

func (r *Recording) Close() error { return os.RemoveAll(r.dir) }

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (f *FFmpeg) probe(ctx context.Context, path string) (Info, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Probe, "-v", "error", "-show_streams", "-show_format", "-of", "json", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("ffprobe: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(b []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return Info{}, fmt.Errorf("ffprobe decode: %w", err)
	}

	var info Info
	hasVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.FrameRate = parseRate(s.AvgFrameRate)
		case "audio":
			info.HasAudio = true
		}
	}
	if !hasVideo {
		return Info{}, ErrNoVideoStream
	}
	if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	return info, nil
}

// parseRate reads ffprobe's "30000/1001" style rates.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func (f *FFmpeg) run(ctx context.Context, bin string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (stderr: %s)", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
