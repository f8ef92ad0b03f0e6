package llm

import (
	"context"
	"fmt"

	"github.com/yoockh/madprep/internal/analysis"
)

// Mock answers without calling a model. Used for offline runs and tests.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Generate(_ context.Context, req Request) (string, error) {
	q, t, e, err := analysis.ParsePayload(payloadOf(req.Prompt))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Question: %s\nAnswer length: %d characters\nExpressions: %s", q, len(t), e), nil
}

func (m *Mock) Close() error { return nil }
