package redis

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/madprep/internal/cache"
	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/utils"
)

const keyPrefix = "madprep:"

// sessionRepo stores snapshots as JSON values that Redis expires at the
// snapshot's ExpiresAt. A per-user key points at the latest session.
type sessionRepo struct {
	c   cache.Cache
	now func() time.Time
}

func NewSessionRepo(c cache.Cache) repositories.SessionRepository {
	return &sessionRepo{c: c, now: time.Now}
}

func sessionKey(id string) string { return keyPrefix + "session:" + id }

func latestKey(userID string) string { return keyPrefix + "user:" + userID + ":latest" }

type latestRef struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *sessionRepo) ttl(s *models.AnalysisSession) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	d := s.ExpiresAt.Sub(r.now())
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (r *sessionRepo) Save(ctx context.Context, s *models.AnalysisSession) error {
	ttl := r.ttl(s)

	var cur latestRef
	hit, err := r.c.GetJSON(ctx, latestKey(s.UserID), &cur)
	if err != nil {
		return err
	}
	if hit && cur.SessionID != s.SessionID && cur.CreatedAt.After(s.CreatedAt) {
		return r.c.SetJSON(ctx, sessionKey(s.SessionID), s, ttl)
	}
	return r.c.SetJSONMany(ctx, map[string]any{
		sessionKey(s.SessionID): s,
		latestKey(s.UserID):     latestRef{SessionID: s.SessionID, CreatedAt: s.CreatedAt},
	}, ttl)
}

// Update writes with SET XX, so a deleted or expired key stays gone.
func (r *sessionRepo) Update(ctx context.Context, s *models.AnalysisSession) error {
	ok, err := r.c.ReplaceJSON(ctx, sessionKey(s.SessionID), s, r.ttl(s))
	if err != nil {
		return err
	}
	if !ok {
		return utils.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, sessionID string) (*models.AnalysisSession, error) {
	var s models.AnalysisSession
	hit, err := r.c.GetJSON(ctx, sessionKey(sessionID), &s)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, utils.ErrNotFound
	}
	return &s, nil
}

func (r *sessionRepo) Latest(ctx context.Context, userID string) (*models.AnalysisSession, error) {
	var ref latestRef
	hit, err := r.c.GetJSON(ctx, latestKey(userID), &ref)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, utils.ErrNotFound
	}
	return r.Get(ctx, ref.SessionID)
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	s, err := r.Get(ctx, sessionID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	keys := []string{sessionKey(sessionID)}
	var ref latestRef
	if hit, _ := r.c.GetJSON(ctx, latestKey(s.UserID), &ref); hit && ref.SessionID == sessionID {
		keys = append(keys, latestKey(s.UserID))
	}
	return r.c.Del(ctx, keys...)
}
