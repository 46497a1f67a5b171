package pkg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"Green_Community/internal/config"
	"Green_Community/internal/graph"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var ErrMissingCredential = errors.New("llm api key is not configured")

const systemPrompt = "You are a sustainability planner. Answer only with a JSON object of the form " +
	`{"nodes":[{"id":"1","data":{"label":"..."},"position":{"x":0,"y":0}}],"edges":[{"id":"e1-2","source":"1","target":"2"}]}.`

// LLMClient 调用 OpenAI 兼容的 chat completions 接口生成计划图
type LLMClient struct {
	httpClient *resty.Client
	apiKey     string
	model      string
	logger     *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

func NewLLMClient(cfg config.LLMConfig, logger *zap.Logger) *LLMClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &LLMClient{
		httpClient: client,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     logger.Named("llm"),
	}
}

// GeneratePlan 返回结构化的 Plan；模型回答不是计划 JSON 时返回原始文本
func (c *LLMClient) GeneratePlan(ctx context.Context, prompt string, opts graph.GenerateOptions) (graph.Output, error) {
	if c.apiKey == "" {
		return graph.Output{}, fmt.Errorf("%w: %w", ErrUpstream, ErrMissingCredential)
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		c.logger.Warn("llm request failed", zap.Error(err))
		return graph.Output{}, fmt.Errorf("%w: llm request: %w", ErrUpstream, err)
	}
	if resp.IsError() {
		c.logger.Warn("llm returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 512)),
		)
		return graph.Output{}, fmt.Errorf("%w: llm status %d", ErrUpstream, resp.StatusCode())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return graph.Output{}, fmt.Errorf("%w: llm response is not json", ErrUpstream)
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return graph.Output{}, fmt.Errorf("%w: llm response has no content", ErrUpstream)
	}

	c.logger.Debug("llm plan generated",
		zap.Int("max_tokens", opts.MaxTokens),
		zap.Int64("total_tokens", gjson.GetBytes(body, "usage.total_tokens").Int()),
	)
	return decodeOutput(content.String()), nil
}

func decodeOutput(content string) graph.Output {
	text := strings.TrimSpace(content)
	if gjson.Valid(text) && gjson.Get(text, "nodes").IsArray() {
		var plan graph.Plan
		if err := json.Unmarshal([]byte(text), &plan); err == nil {
			return graph.Output{Plan: &plan}
		}
	}
	return graph.Output{Text: content}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
