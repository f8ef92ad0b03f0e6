package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/utils"
)

type questionRepo struct {
	mu sync.RWMutex
	qs []models.Question
}

func NewQuestionRepo() repositories.QuestionRepository {
	return &questionRepo{}
}

func (r *questionRepo) List(context.Context) ([]models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.qs), nil
}

func (r *questionRepo) Get(_ context.Context, id string) (*models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, q := range r.qs {
		if q.ID == id {
			return &q, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *questionRepo) Create(_ context.Context, q *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasText(q.Text) {
		return utils.ErrConflict
	}
	r.qs = append(r.qs, *q)
	return nil
}

func (r *questionRepo) Seed(_ context.Context, qs []models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range qs {
		if !r.hasText(q.Text) {
			r.qs = append(r.qs, q)
		}
	}
	return nil
}

func (r *questionRepo) hasText(text string) bool {
	for _, q := range r.qs {
		if strings.EqualFold(q.Text, text) {
			return true
		}
	}
	return false
}
