package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

// GeminiAPI talks to the Gemini Developer API with an API key. A request may
// carry its own key; clients are kept per key.
type GeminiAPI struct {
	defaultKey string
	modelName  string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func NewGeminiAPI(apiKey, modelName string) *GeminiAPI {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &GeminiAPI{
		defaultKey: apiKey,
		modelName:  modelName,
		clients:    map[string]*genai.Client{},
	}
}

func (g *GeminiAPI) client(ctx context.Context, key string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	g.clients[key] = c
	return c, nil
}

func (g *GeminiAPI) Generate(ctx context.Context, req Request) (string, error) {
	key := req.APIKey
	if key == "" {
		key = g.defaultKey
	}
	if key == "" {
		return "", errors.New("gemini api key is missing")
	}
	model := req.Model
	if model == "" {
		model = g.modelName
	}

	c, err := g.client(ctx, key)
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}

	temp := float32(0.7)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	res, err := c.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return res.Text(), nil
}

func (g *GeminiAPI) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.clients)
	return nil
}
