package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com"
	geminiDefaultModel = "gemini-1.5-pro-latest"

	generateTimeout = 30 * time.Second
)

type Gemini struct {
	client *resty.Client
	apiKey string
	model  string

	temperature     float64
	maxOutputTokens int
}

func NewGemini(apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not provided")
	}
	if model == "" {
		model = geminiDefaultModel
	}

	return &Gemini{
		client:          resty.New().SetBaseURL(geminiBaseURL),
		apiKey:          apiKey,
		model:           model,
		temperature:     0.0,
		maxOutputTokens: 8192,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		CandidateCount  int     `json:"candidateCount"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Gemini) Generate(ctx context.Context, messages []Message) (string, error) {
	body := geminiRequest{}
	body.GenerationConfig.CandidateCount = 1
	body.GenerationConfig.MaxOutputTokens = g.maxOutputTokens
	body.GenerationConfig.Temperature = g.temperature

	for _, msg := range messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	var out geminiResponse
	res, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", g.model))
	if err != nil {
		slog.Error("gemini request failed", "error", err)
		return "", ErrUnavailable
	}

	switch {
	case res.StatusCode() == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case res.StatusCode() >= 400 && res.StatusCode() < 500:
		slog.Error("gemini rejected request", "status", res.StatusCode(), "body", res.String())
		return "", ErrRejected
	case !res.IsSuccess():
		slog.Error("gemini returned error status", "status", res.StatusCode())
		return "", ErrUnavailable
	}

	if out.PromptFeedback.BlockReason != "" {
		slog.Warn("gemini blocked prompt", "reason", out.PromptFeedback.BlockReason)
		return "", ErrRejected
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		slog.Error("gemini response contained no candidates")
		return "", ErrUnavailable
	}

	text := ""
	for _, part := range out.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}
