package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

var errEmptyResponse = errors.New("model returned empty response")

// Gemini is the production Client backed by the Gemini API.
type Gemini struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
	logger          *slog.Logger
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey          string
	Model           string
	MaxOutputTokens int32
}

// NewGemini creates a Gemini-backed client. It fails fast on a
// missing API key so bad deployments surface at startup.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required: %w", errdefs.ErrInvalidArgument)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logger.Info("Gemini client ready", "model", cfg.Model)

	return &Gemini{
		client:          client,
		model:           cfg.Model,
		maxOutputTokens: cfg.MaxOutputTokens,
		logger:          logger,
	}, nil
}

// Generate performs one completion call against Gemini.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: g.maxOutputTokens,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	if err != nil {
		return "", classifyGenerateError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

// classifyGenerateError tags backend failures with an errdefs class
// so the transport layer can map them to status codes. Context
// cancellation passes through untouched.
func classifyGenerateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("gemini generate: %w", errors.Join(errdefs.ErrUnavailable, err))
}
