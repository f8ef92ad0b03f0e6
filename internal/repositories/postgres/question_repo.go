package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/utils"
)

type questionRepo struct {
	db *gorm.DB
}

// NewQuestionRepo expects a *gorm.DB opened with TranslateError so unique
// violations surface as gorm.ErrDuplicatedKey.
func NewQuestionRepo(db *gorm.DB) repositories.QuestionRepository {
	return &questionRepo{db: db}
}

func (r *questionRepo) List(ctx context.Context) ([]models.Question, error) {
	var qs []models.Question
	err := r.db.WithContext(ctx).
		Order("built_in DESC").
		Order("created_at ASC").
		Find(&qs).Error
	return qs, err
}

func (r *questionRepo) Get(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *questionRepo) Create(ctx context.Context, q *models.Question) error {
	err := r.db.WithContext(ctx).Create(q).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.ErrConflict
	}
	return err
}

func (r *questionRepo) Seed(ctx context.Context, qs []models.Question) error {
	if len(qs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "text"}},
			DoNothing: true,
		}).
		Create(&qs).Error
}
