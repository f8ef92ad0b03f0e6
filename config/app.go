package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type LLMBackend string

const (
	LLMGemini LLMBackend = "gemini"
	LLMVertex LLMBackend = "vertex"
	LLMMock   LLMBackend = "mock"
)

// AppConfig is everything the binaries read from the environment.
type AppConfig struct {
	Port string

	GoogleAPIKey string
	LLMBackend   LLMBackend
	ModelName    string
	GCPProject   string
	GCPLocation  string

	SampleStride    int
	ClassifyWorkers int
	EmotionURL      string
	SpeechLanguage  string
	GCSBucket       string
	FFmpegPath      string
	FFprobePath     string

	UploadDir    string
	MaxUploadMB  int64
	SessionStore string // memory | redis | mongo
	QueueBackend string // local | redis
	Workers      int
	SessionTTL   time.Duration

	TranscribeTimeout time.Duration
	ClassifyTimeout   time.Duration
	FeedbackTimeout   time.Duration

	QuestionStore string // memory | postgres

	TelemetryEnabled bool
	LogDir           string

	JWTSecret    string
	AuthDisabled bool
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load reads the environment and validates the result.
func Load() (*AppConfig, error) { return load(false) }

// LoadOffline is Load for the command-line tool, which serves no HTTP and so
// needs no JWT secret.
func LoadOffline() (*AppConfig, error) { return load(true) }

func load(offline bool) (*AppConfig, error) {
	cfg := &AppConfig{
		Port:           getEnv("PORT", "8080"),
		GoogleAPIKey:   getEnv("GOOGLE_API_KEY", ""),
		LLMBackend:     LLMBackend(strings.ToLower(getEnv("LLM_BACKEND", string(LLMGemini)))),
		ModelName:      getEnv("MODEL_NAME", "gemini-2.0-flash"),
		GCPProject:     getEnv("GCP_PROJECT", ""),
		GCPLocation:    getEnv("GCP_LOCATION", "us-central1"),
		EmotionURL:     getEnv("EMOTION_URL", "http://localhost:5005"),
		SpeechLanguage: getEnv("SPEECH_LANGUAGE", "en-US"),
		GCSBucket:      getEnv("GCS_BUCKET", ""),
		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
		UploadDir:      getEnv("UPLOAD_DIR", filepath.Join(os.TempDir(), "madprep")),
		SessionStore:   strings.ToLower(getEnv("SESSION_STORE", "memory")),
		QueueBackend:   strings.ToLower(getEnv("QUEUE_BACKEND", "local")),
		QuestionStore:  strings.ToLower(getEnv("QUESTION_STORE", "memory")),

		TelemetryEnabled: getBoolEnv("TELEMETRY_ENABLED", false),
		LogDir:           getEnv("LOG_DIR", "logs"),
		JWTSecret:        os.Getenv("SUPABASE_JWT_SECRET"),
		AuthDisabled:     getBoolEnv("AUTH_DISABLED", false),
	}

	var errs []error
	intVar := func(dst *int, key string, def int) {
		v, err := getIntEnv(key, def)
		errs = append(errs, err)
		*dst = v
	}
	durVar := func(dst *time.Duration, key string, def time.Duration) {
		v, err := getDurationEnv(key, def)
		errs = append(errs, err)
		*dst = v
	}

	var maxMB int
	intVar(&cfg.SampleStride, "SAMPLE_STRIDE", 10)
	intVar(&cfg.ClassifyWorkers, "CLASSIFY_WORKERS", runtime.NumCPU())
	intVar(&cfg.Workers, "WORKERS", 2)
	intVar(&maxMB, "MAX_UPLOAD_MB", 200)
	cfg.MaxUploadMB = int64(maxMB)
	durVar(&cfg.SessionTTL, "SESSION_TTL", 2*time.Hour)
	durVar(&cfg.TranscribeTimeout, "TRANSCRIBE_TIMEOUT", 5*time.Minute)
	durVar(&cfg.ClassifyTimeout, "CLASSIFY_TIMEOUT", 20*time.Second)
	durVar(&cfg.FeedbackTimeout, "FEEDBACK_TIMEOUT", 2*time.Minute)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if offline {
		cfg.AuthDisabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.SampleStride < 1 {
		errs = append(errs, errors.New("SAMPLE_STRIDE must be >= 1"))
	}
	if c.ClassifyWorkers < 1 {
		errs = append(errs, errors.New("CLASSIFY_WORKERS must be >= 1"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("WORKERS must be >= 1"))
	}
	if c.MaxUploadMB < 1 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be >= 1"))
	}
	switch c.LLMBackend {
	case LLMGemini, LLMMock:
	case LLMVertex:
		if c.GCPProject == "" {
			errs = append(errs, errors.New("GCP_PROJECT must be set for the vertex backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_BACKEND %q", c.LLMBackend))
	}
	if !oneOf(c.SessionStore, "memory", "redis", "mongo") {
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}
	if !oneOf(c.QueueBackend, "local", "redis") {
		errs = append(errs, fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend))
	}
	if !oneOf(c.QuestionStore, "memory", "postgres") {
		errs = append(errs, fmt.Errorf("unknown QUESTION_STORE %q", c.QuestionStore))
	}
	if !c.AuthDisabled && c.JWTSecret == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET must be set unless AUTH_DISABLED=true"))
	}
	return errors.Join(errs...)
}

// DefaultCredential is the feedback credential used when a submission has
// none. The vertex backend authenticates through ADC, so the project stands in.
func (c *AppConfig) DefaultCredential() string {
	switch c.LLMBackend {
	case LLMVertex:
		return c.GCPProject
	case LLMMock:
		return "mock"
	default:
		return c.GoogleAPIKey
	}
}

func oneOf(v string, opts ...string) bool {
	for _, o := range opts {
		if v == o {
			return true
		}
	}
	return false
}
