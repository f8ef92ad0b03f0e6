package logger

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"":         logrus.InfoLevel,
		"DEBUG":    logrus.DebugLevel,
		" warning": logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"trace":    logrus.TraceLevel,
		"verbose":  logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewWithLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "madprep.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_LEVEL", "debug")

	l := New()
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level %s", l.GetLevel())
	}
	l.Info("hello")
	if matches, _ := filepath.Glob(path); len(matches) != 1 {
		t.Fatal("log file not created")
	}
}
