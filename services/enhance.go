package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// EnhanceKind selects the prompt used to polish a piece of text.
type EnhanceKind string

const (
	EnhanceTestimony EnhanceKind = "testimony"
	EnhanceTitle     EnhanceKind = "title"
	EnhanceSoulNotes EnhanceKind = "soul_notes"
)

var enhancePrompts = map[EnhanceKind]string{
	EnhanceTestimony: "You help believers share faith testimonies. Rewrite the testimony below so it reads clearly and warmly. " +
		"Keep it in the first person, keep every fact, do not invent details, and return only the rewritten text.",
	EnhanceTitle: "Write one short, engaging title (at most eight words) for the testimony below. Return only the title.",
	EnhanceSoulNotes: "Tidy up the follow-up notes below about a new believer. Fix grammar and keep every fact. " +
		"Return only the notes.",
}

// Enhancer turns raw user text into a polished version. Implementations make a
// single request; callers decide whether to retry.
type Enhancer interface {
	Enhance(ctx context.Context, kind EnhanceKind, text string) (string, error)
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiEnhancer calls the Gemini API through the genai SDK.
type GeminiEnhancer struct {
	models contentGenerator
	model  string
	log    *zap.Logger
}

const DefaultGeminiModel = "gemini-2.0-flash"

// NewGeminiEnhancer returns a disabled enhancer when apiKey is empty; every
// call then fails with ErrNotConfigured.
func NewGeminiEnhancer(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiEnhancer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	e := &GeminiEnhancer{model: model, log: logger.Named("enhance")}
	if apiKey == "" {
		return e, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	e.models = client.Models
	return e, nil
}

func (e *GeminiEnhancer) Enhance(ctx context.Context, kind EnhanceKind, text string) (string, error) {
	if e == nil || e.models == nil {
		return "", ErrNotConfigured
	}
	prompt, ok := enhancePrompts[kind]
	if !ok {
		return "", invalid("unknown enhance kind %q", kind)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalid("text is required")
	}

	resp, err := e.models.GenerateContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt, genai.RoleUser),
		},
	)
	if err != nil {
		e.log.Error("enhance request failed", zap.String("kind", string(kind)), zap.Error(err))
		return "", opFailed("enhance", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", opFailed("enhance", fmt.Errorf("model returned no text"))
	}
	return out, nil
}
