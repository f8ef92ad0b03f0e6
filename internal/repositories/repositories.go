// Package repositories declares the stores shared by the memory, redis,
// mongo and postgres implementations.
package repositories

import (
	"context"

	"github.com/yoockh/madprep/internal/models"
)

// SessionRepository keeps analysis snapshots. Get and Latest return
// utils.ErrNotFound when nothing matches.
type SessionRepository interface {
	Save(ctx context.Context, s *models.AnalysisSession) error
	// Update replaces a live snapshot and never creates one: it returns
	// utils.ErrNotFound once the session is deleted or expired.
	Update(ctx context.Context, s *models.AnalysisSession) error
	Get(ctx context.Context, sessionID string) (*models.AnalysisSession, error)
	// Latest is the user's most recently created session.
	Latest(ctx context.Context, userID string) (*models.AnalysisSession, error)
	Delete(ctx context.Context, sessionID string) error
}

// QuestionRepository is the interview question catalog. Create returns
// utils.ErrConflict for a duplicate text.
type QuestionRepository interface {
	List(ctx context.Context) ([]models.Question, error)
	Get(ctx context.Context, id string) (*models.Question, error)
	Create(ctx context.Context, q *models.Question) error
	// Seed inserts the questions whose text is not yet present.
	Seed(ctx context.Context, qs []models.Question) error
}
