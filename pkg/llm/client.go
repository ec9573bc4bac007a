// Package llm talks to the external LLM oracle over the HTTP
// {base_url}/chat/completions contract (§6.2): one Client serves both
// per-event scoring calls (ScoreBatch) and per-window meta-analysis
// calls (Analyze), with shared retry, rate-limit, and cost-accounting
// plumbing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/sentinel/pkg/config"
	"github.com/codeready-toolchain/sentinel/pkg/errs"
)

// Client calls the chat-completions endpoint with retry and rate
// limiting, and tracks token usage for cost accounting (§6.2, llm_usage).
type Client struct {
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	cfg        *config.LLMConfig
	apiKey     string
}

// NewClient builds a Client from cfg. apiKey is resolved by the caller
// via config.ResolveSecret(cfg.APIKeyEnv) so this package never reads
// the environment itself.
func NewClient(cfg *config.LLMConfig, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.CallTimeout

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		httpClient: rc,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		cfg:        cfg,
		apiKey:     apiKey,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Result is the raw text content plus token accounting for one call.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Call sends one chat-completions request with the given model, system
// prompt, and user content, honoring the configured rate limit and
// retry policy (§6.2 "transient HTTP errors are retried with backoff").
func (c *Client) Call(ctx context.Context, model, systemPrompt, userContent string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, errs.Wrap(errs.ErrTransientIO, "rate limit wait", err)
	}

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: c.cfg.Temperature,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	url := c.cfg.BaseURL + "/chat/completions"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrLlmCall, "build llm request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrLlmCall, "llm call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrLlmCall, "read llm response", err)
	}
	if resp.StatusCode >= 300 {
		return Result{}, errs.Wrap(errs.ErrLlmCall, fmt.Sprintf("llm returned status %d", resp.StatusCode), fmt.Errorf("%s", body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, errs.Wrap(errs.ErrLlmParse, "decode llm envelope", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, errs.Wrap(errs.ErrLlmParse, "llm returned no choices", errs.NewInvariant("llm", "empty choices"))
	}
	return Result{
		Content:      parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// EstimateCost converts token counts into a dollar estimate using the
// configured per-million-token rates for model, defaulting to 0 for
// unknown models (§6.2, llm_usage.cost_estimate).
func EstimateCost(cfg *config.LLMConfig, model string, inputTokens, outputTokens int) float64 {
	inRate := cfg.CostPerMillionInputTokens[model]
	outRate := cfg.CostPerMillionOutputTokens[model]
	return (float64(inputTokens)/1_000_000)*inRate + (float64(outputTokens)/1_000_000)*outRate
}

// CallTimeout exposes the configured per-call timeout for callers that
// need to bound a batch of calls against MaxScoringJobDuration (§4.4).
func (c *Client) CallTimeout() time.Duration { return c.cfg.CallTimeout }
