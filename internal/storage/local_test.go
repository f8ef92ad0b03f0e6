package storage

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestLocalUploadDelete(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	p, err := l.Upload(ctx, "sessions/a/answer.mp4", "video/mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "video" {
		t.Fatalf("read back %q, %v", b, err)
	}

	if err := l.Delete(ctx, "sessions/a/answer.mp4"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if err := l.Delete(ctx, "sessions/a/answer.mp4"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Upload(context.Background(), "../escape", "", strings.NewReader("x")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLocalUploadCanceled(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Upload(ctx, "x.mp4", "", strings.NewReader("video")); err == nil {
		t.Fatal("expected context error")
	}
}
