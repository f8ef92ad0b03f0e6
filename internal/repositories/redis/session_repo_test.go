package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/utils"
)

type entry struct {
	val []byte
	ttl time.Duration
}

// mapCache mimics RedisCache's JSON semantics without a server.
type mapCache map[string]entry

func (m mapCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	e, ok := m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(e.val, dst)
}

func (m mapCache) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m[key] = entry{val: b, ttl: ttl}
	return nil
}

func (m mapCache) SetJSONMany(ctx context.Context, entries map[string]any, ttl time.Duration) error {
	for k, v := range entries {
		if err := m.SetJSON(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (m mapCache) ReplaceJSON(ctx context.Context, key string, val any, ttl time.Duration) (bool, error) {
	if _, ok := m[key]; !ok {
		return false, nil
	}
	return true, m.SetJSON(ctx, key, val, ttl)
}

func (m mapCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func TestSessionRepo(t *testing.T) {
	ctx := context.Background()
	c := mapCache{}
	r := NewSessionRepo(c)
	now := time.Now()

	text := "hello"
	first := &models.AnalysisSession{SessionID: "a", UserID: "u", Stage: "transcribing", Transcript: &text, CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)}
	second := &models.AnalysisSession{SessionID: "b", UserID: "u", Stage: "idle", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := r.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := r.Save(ctx, second); err != nil {
		t.Fatal(err)
	}
	// a late write for the older session must not move the pointer back
	first.Stage = "failed"
	if err := r.Save(ctx, first); err != nil {
		t.Fatal(err)
	}

	if ttl := c[sessionKey("a")].ttl; ttl <= 59*time.Minute || ttl > time.Hour {
		t.Fatalf("ttl %v", ttl)
	}

	latest, err := r.Latest(ctx, "u")
	if err != nil || latest.SessionID != "b" {
		t.Fatalf("latest %v %v", latest, err)
	}
	got, err := r.Get(ctx, "a")
	if err != nil || got.Stage != "failed" || got.Transcript == nil || *got.Transcript != "hello" {
		t.Fatalf("get %+v %v", got, err)
	}

	if err := r.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Latest(ctx, "u"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if err := r.Delete(ctx, "missing"); err != nil {
		t.Fatal(err)
	}
}

func TestSessionRepoUpdateNeverRecreates(t *testing.T) {
	ctx := context.Background()
	c := mapCache{}
	r := NewSessionRepo(c)
	now := time.Now()
	s := &models.AnalysisSession{SessionID: "a", UserID: "u", Stage: "idle", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	if err := r.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	s.Stage = "sampling_frames"
	if err := r.Update(ctx, s); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Get(ctx, "a"); got.Stage != "sampling_frames" {
		t.Fatalf("stage = %q", got.Stage)
	}
	if c[sessionKey("a")].ttl <= 0 {
		t.Fatal("update dropped the expiry")
	}

	if err := r.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := r.Update(ctx, s); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("update after delete: %v", err)
	}
	if _, ok := c[sessionKey("a")]; ok {
		t.Fatal("deleted session came back")
	}
}
