package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/utils"
)

const maxQuestionLen = 500

// DefaultQuestions seed every catalog.
var DefaultQuestions = []string{
	"Tell me about yourself",
	"What is your greatest strength?",
	"What is your greatest weakness?",
	"Why do you want to work for this company?",
	"Where do you see yourself in 5 years?",
}

type QuestionService interface {
	List(ctx context.Context) ([]models.Question, error)
	Create(ctx context.Context, text, category string, tags []string, metadata json.RawMessage) (*models.Question, error)
	// Resolve returns the question text for a catalog id, or the trimmed
	// free text when id is empty.
	Resolve(ctx context.Context, id, text string) (string, error)
	SeedDefaults(ctx context.Context) error
}

type questionService struct {
	questions repositories.QuestionRepository
}

func NewQuestionService(questions repositories.QuestionRepository) QuestionService {
	return &questionService{questions: questions}
}

// questionID is stable per text so every instance seeds the same ids.
func questionID(text string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("madprep:question:"+strings.ToLower(text))).String()
}

func (s *questionService) SeedDefaults(ctx context.Context) error {
	const op = "QuestionService.SeedDefaults"

	now := time.Now().UTC()
	qs := make([]models.Question, len(DefaultQuestions))
	for i, text := range DefaultQuestions {
		qs[i] = models.Question{
			ID:        questionID(text),
			Text:      text,
			Category:  "general",
			BuiltIn:   true,
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}
	}
	if err := s.questions.Seed(ctx, qs); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to seed questions", err)
	}
	return nil
}

func (s *questionService) List(ctx context.Context) ([]models.Question, error) {
	const op = "QuestionService.List"

	qs, err := s.questions.List(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list questions", err)
	}
	return qs, nil
}

func (s *questionService) Create(ctx context.Context, text, category string, tags []string, metadata json.RawMessage) (*models.Question, error) {
	const op = "QuestionService.Create"

	text, err := cleanQuestion(text)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil)
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "metadata must be valid JSON", nil)
	}
	if category == "" {
		category = "custom"
	}

	q := &models.Question{
		ID:        questionID(text),
		Text:      text,
		Category:  strings.TrimSpace(category),
		Tags:      tags,
		Metadata:  datatypes.JSON(metadata),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.questions.Create(ctx, q); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "question already exists", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create question", err)
	}
	return q, nil
}

func (s *questionService) Resolve(ctx context.Context, id, text string) (string, error) {
	const op = "QuestionService.Resolve"

	if id = strings.TrimSpace(id); id != "" {
		q, err := s.questions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, utils.ErrNotFound) {
				return "", utils.E(utils.CodeNotFound, op, "question not found", err)
			}
			return "", utils.E(utils.CodeInternal, op, "failed to get question", err)
		}
		return q.Text, nil
	}

	text, err := cleanQuestion(text)
	if err != nil {
		return "", utils.E(utils.CodeInvalidArgument, op, "question or question_id is required", nil)
	}
	return text, nil
}

func cleanQuestion(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("question text is required")
	}
	if utf8.RuneCountInString(text) > maxQuestionLen {
		return "", errors.New("question text is too long")
	}
	return text, nil
}
