// Package provider calls an OpenAI-compatible completion API (OpenRouter by
// default) with bounded retries and classifies every failure into an
// apperr kind.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/samuell19/megazord-ai/internal/apperr"
	"github.com/samuell19/megazord-ai/internal/config"
	"github.com/samuell19/megazord-ai/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultTimeout     = 60 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second

	tracerName = "github.com/samuell19/megazord-ai/internal/provider"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Client. Zero values take the defaults above.
type Options struct {
	BaseURL     string
	Timeout     time.Duration // per attempt
	MaxRetries  int           // retries beyond the first attempt
	BackoffBase time.Duration
	Referer     string
	Title       string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Sleep      SleepFunc
	Tracer     trace.Tracer
}

// OptionsFromConfig maps the provider section of the config file.
func OptionsFromConfig(cfg config.ProviderConfig) Options {
	return Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		Referer:     cfg.Referer,
		Title:       cfg.Title,
	}
}

// Client sends chat completions. Safe for concurrent use.
type Client struct {
	api         openai.Client
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	log         *slog.Logger
	sleep       SleepFunc
	tracer      trace.Tracer
}

// NewClient builds a Client. The SDK's own retry loop is disabled; retries
// are driven by Send.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(opts.BaseURL),
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Referer != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", opts.Referer))
	}
	if opts.Title != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", opts.Title))
	}

	return &Client{
		api:         openai.NewClient(reqOpts...),
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		log:         opts.Logger,
		sleep:       opts.Sleep,
		tracer:      opts.Tracer,
	}
}

// Send issues a chat completion for model with the given prompt, retrying
// transient failures (no response, 5xx) with exponential backoff.
func (c *Client) Send(ctx context.Context, credential, model string, messages []Message) (*Result, error) {
	if model == "" {
		return nil, apperr.New(apperr.KindMalformedRequest, "model is required")
	}
	if len(messages) == 0 {
		return nil, apperr.New(apperr.KindMalformedRequest, "at least one message is required")
	}
	if credential == "" {
		return nil, apperr.New(apperr.KindConfiguration, "provider credential is not configured")
	}
	params, err := chatParams(model, messages)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, c.log)
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			log.Warn("provider call failed, retrying",
				"model", model, "attempt", attempt, "status", lastStatus, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, apperr.Classify(apperr.KindNetworkUnreachable, err, "provider call cancelled")
			}
		}

		resp, status, err := c.attempt(ctx, credential, params, attempt)
		if err == nil {
			return toResult(resp, model)
		}
		if !transient(status) {
			return nil, classify(status, err)
		}
		lastErr, lastStatus = err, status
		if ctx.Err() != nil {
			break
		}
	}

	if lastStatus >= 500 {
		return nil, apperr.Classify(apperr.KindProviderUnavailable, lastErr,
			fmt.Sprintf("provider unavailable after %d attempts", c.maxRetries+1))
	}
	return nil, apperr.Classify(apperr.KindNetworkUnreachable, lastErr,
		fmt.Sprintf("provider unreachable after %d attempts", c.maxRetries+1))
}

// ListModels fetches the provider's model catalogue. It is never retried.
func (c *Client) ListModels(ctx context.Context, credential string) ([]ModelDescriptor, error) {
	if credential == "" {
		return nil, apperr.New(apperr.KindConfiguration, "provider credential is not configured")
	}
	ctx, span := c.tracer.Start(ctx, "provider.list_models")
	defer span.End()

	var (
		raw  *http.Response
		list modelList
	)
	err := c.api.Get(ctx, "models", nil, &list, c.requestOptions(credential, &raw)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if raw != nil && raw.StatusCode == http.StatusUnauthorized {
			return nil, apperr.Classify(apperr.KindInvalidCredential, err, "invalid or expired API key")
		}
		return nil, apperr.Classify(apperr.KindProviderError, err, "failed to fetch available models")
	}
	return list.descriptors(), nil
}

// attempt makes one HTTP call. status is 0 when no response was received.
func (c *Client) attempt(ctx context.Context, credential string, params openai.ChatCompletionNewParams, n int) (*openai.ChatCompletion, int, error) {
	ctx, span := c.tracer.Start(ctx, "provider.chat_completion", trace.WithAttributes(
		attribute.String("llm.model", string(params.Model)),
		attribute.Int("llm.attempt", n+1),
	))
	defer span.End()

	var raw *http.Response
	resp, err := c.api.Chat.Completions.New(ctx, params, c.requestOptions(credential, &raw)...)
	status := 0
	if raw != nil {
		status = raw.StatusCode
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, status, err
	}
	return resp, status, nil
}

func (c *Client) requestOptions(credential string, raw **http.Response) []option.RequestOption {
	return []option.RequestOption{
		option.WithAPIKey(credential),
		option.WithRequestTimeout(c.timeout),
		option.WithResponseInto(raw),
	}
}

// backoff returns base * 2^n.
func (c *Client) backoff(n int) time.Duration {
	return c.backoffBase << n
}

func transient(status int) bool {
	return status == 0 || status >= 500
}

func classify(status int, err error) error {
	detail := providerMessage(err)
	switch status {
	case http.StatusUnauthorized:
		return apperr.Classify(apperr.KindInvalidCredential, err, "invalid or expired API key")
	case http.StatusTooManyRequests:
		return apperr.Classify(apperr.KindRateLimited, err, "rate limit exceeded, try again later")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		msg := "invalid request"
		if detail != "" {
			msg += ": " + detail
		}
		return apperr.Classify(apperr.KindMalformedRequest, err, msg)
	default:
		return apperr.Classify(apperr.KindProviderError, err, fmt.Sprintf("unexpected provider response (status %d)", status))
	}
}

// providerMessage extracts the provider's own error text, if any.
func providerMessage(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

func chatParams(model string, messages []Message) (openai.ChatCompletionNewParams, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return openai.ChatCompletionNewParams{}, apperr.New(apperr.KindMalformedRequest,
				"message %d: unsupported role %q", i, m.Role)
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: out,
	}, nil
}

func toResult(resp *openai.ChatCompletion, requested string) (*Result, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, apperr.New(apperr.KindProviderError, "provider returned no choices")
	}
	choice := resp.Choices[0]
	res := &Result{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
	}
	if res.Model == "" {
		res.Model = requested
	}
	if resp.JSON.Usage.Valid() {
		res.Usage = &Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
