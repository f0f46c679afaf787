// Package generator implements the content-generation backend against the
// Gemini generateContent HTTP API.
package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gembot/internal/domain"
)

const (
	defaultAPIBase = "https://generativelanguage.googleapis.com/v1beta"

	// The closed set of supported model identifiers.
	ModelFlash    = "gemini-2.0-flash-exp"
	ModelThinking = "gemini-2.0-flash-thinking-exp-1219"
)

// Gemini implements domain.ContentGenerator for one model of the Gemini
// generateContent API. The flash variant carries the google_search tool;
// the thinking variant does not support tools.
type Gemini struct {
	apiKey       string
	apiBase      string
	model        string
	systemPrompt string
	searchTool   bool
	client       *http.Client
	logger       *slog.Logger
}

type GeminiConfig struct {
	APIKey       string
	APIBase      string
	Model        string
	SystemPrompt string
	SearchTool   bool
	Logger       *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = ModelFlash
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{
		apiKey:       cfg.APIKey,
		apiBase:      cfg.APIBase,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		searchTool:   cfg.SearchTool,
		client:       newHTTPClient(0),
		logger:       cfg.Logger,
	}
}

func (g *Gemini) Model() string { return g.model }

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiTool struct {
	GoogleSearch struct{} `json:"google_search"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate issues one generateContent call: the request's segments become a
// single text part, attachments follow as inline JPEG data.
func (g *Gemini) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	parts := []geminiPart{{Text: strings.Join(req.Segments, "\n")}}
	for _, att := range req.Attachments {
		mime := att.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: mime,
			Data:     base64.StdEncoding.EncodeToString(att.Data),
		}})
	}

	body := geminiRequest{Contents: []geminiContent{{Parts: parts}}}
	if g.systemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: g.systemPrompt}}}
	}
	if g.searchTool {
		body.Tools = []geminiTool{{}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.apiBase, g.model)
	buildReq := func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.apiKey)
		return httpReq, nil
	}

	resp, err := doWithRetry(ctx, g.client, buildReq, g.logger)
	if err != nil {
		return "", g.wrap(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", g.wrap(ctx, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", g.wrap(ctx, fmt.Errorf("API returned %d: %s", resp.StatusCode, raw))
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", g.wrap(ctx, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != nil {
		return "", g.wrap(ctx, fmt.Errorf("API error %d: %s", decoded.Error.Code, decoded.Error.Message))
	}
	if len(decoded.Candidates) == 0 {
		return "", g.wrap(ctx, errors.New("no candidates in response"))
	}

	// Thinking models emit a reasoning part before the answer; joining all
	// non-empty text parts covers both variants.
	var sb strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", g.wrap(ctx, errors.New("empty response text"))
	}
	return sb.String(), nil
}

func (g *Gemini) wrap(ctx context.Context, err error) error {
	return &domain.GenerationError{
		Model:   g.model,
		Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
		Err:     err,
	}
}
