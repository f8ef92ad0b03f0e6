package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/utils"
)

type sessionRepo struct {
	mu   sync.RWMutex
	byID map[string]models.AnalysisSession
	now  func() time.Time
}

func NewSessionRepo() repositories.SessionRepository {
	return &sessionRepo{byID: map[string]models.AnalysisSession{}, now: time.Now}
}

func (r *sessionRepo) Save(_ context.Context, s *models.AnalysisSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.SessionID] = clone(s)
	r.sweep()
	return nil
}

func (r *sessionRepo) Update(_ context.Context, s *models.AnalysisSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[s.SessionID]
	if !ok || r.expired(cur) {
		return utils.ErrNotFound
	}
	r.byID[s.SessionID] = clone(s)
	return nil
}

func (r *sessionRepo) Get(_ context.Context, sessionID string) (*models.AnalysisSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sessionID]
	if !ok || r.expired(s) {
		return nil, utils.ErrNotFound
	}
	out := clone(&s)
	return &out, nil
}

func (r *sessionRepo) Latest(_ context.Context, userID string) (*models.AnalysisSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *models.AnalysisSession
	for _, s := range r.byID {
		if s.UserID != userID || r.expired(s) {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			c := clone(&s)
			latest = &c
		}
	}
	if latest == nil {
		return nil, utils.ErrNotFound
	}
	return latest, nil
}

func (r *sessionRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, sessionID)
	return nil
}

func (r *sessionRepo) expired(s models.AnalysisSession) bool {
	return !s.ExpiresAt.IsZero() && !r.now().Before(s.ExpiresAt)
}

// sweep drops expired snapshots; callers hold the write lock.
func (r *sessionRepo) sweep() {
	for id, s := range r.byID {
		if r.expired(s) {
			delete(r.byID, id)
		}
	}
}

func clone(s *models.AnalysisSession) models.AnalysisSession {
	c := *s
	c.Emotions = maps.Clone(s.Emotions)
	c.EmotionCounts = maps.Clone(s.EmotionCounts)
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	if s.Frames != nil {
		f := *s.Frames
		c.Frames = &f
	}
	return c
}
