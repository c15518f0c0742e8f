package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/ai"
)

const (
	defaultMaxTokens = 2048
	defaultTimeout   = 60 * time.Second
	defaultModel     = "gpt-4o"
)

// Provider kinds. All of them speak the OpenAI chat completions protocol.
const (
	KindOpenAI = "openai"
	KindAzure  = "azure"
	KindLocal  = "local"
)

// Config binds a Client to a single provider.
type Config struct {
	Name        string
	Kind        string
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	JSONMode    bool
}

// SystemPrompter supplies the fixed system message. Optional.
type SystemPrompter interface {
	SystemPrompt() string
}

type Client struct {
	*openai.Client
	cfg    Config
	system string
}

var _ ai.Client = (*Client)(nil)

// NewClient builds a client for cfg. The credential always comes from cfg,
// which is populated from configuration.
func NewClient(cfg Config, sp SystemPrompter) (*Client, error) {
	if cfg.Kind == "" {
		cfg.Kind = KindOpenAI
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Kind
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return nil, fmt.Errorf("temperature %.2f out of range [0,1]", cfg.Temperature)
	}

	var oc openai.ClientConfig
	switch cfg.Kind {
	case KindOpenAI:
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	case KindAzure:
		if cfg.BaseURL == "" {
			return nil, errors.New("azure provider requires base_url")
		}
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
	case KindLocal:
		if cfg.BaseURL == "" {
			return nil, errors.New("local provider requires base_url")
		}
		oc = openai.DefaultConfig(cfg.APIKey)
		oc.BaseURL = cfg.BaseURL
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", cfg.Kind)
	}

	c := &Client{Client: openai.NewClientWithConfig(oc), cfg: cfg}
	if sp != nil {
		c.system = sp.SystemPrompt()
	}
	return c, nil
}

func (c *Client) Name() string { return c.cfg.Name }

// Analyze sends one chat completion. No retries happen here.
func (c *Client) Analyze(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: c.messages(prompt),
	}
	// Reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens and get
	// neither a temperature nor a response format.
	if isReasoningModel(c.cfg.Model) {
		req.MaxCompletionTokens = c.cfg.MaxTokens
	} else {
		req.MaxTokens = c.cfg.MaxTokens
		req.Temperature = float32(c.cfg.Temperature)
		if c.cfg.JSONMode {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	resp, err := c.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", ai.NewProviderError(c.cfg.Name, ai.ErrProviderUnavailable, errors.New("response contained no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) messages(prompt string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if c.system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.system})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

// classify maps SDK errors onto the transport taxonomy. A canceled caller
// context is returned as is so it never looks like a provider failure.
func (c *Client) classify(parent context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		return fmt.Errorf("%s: %w", c.cfg.Name, perr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.NewProviderError(c.cfg.Name, ai.ErrTimeout, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.NewProviderError(c.cfg.Name, ai.ErrAuth, err)
	case http.StatusTooManyRequests:
		return ai.NewProviderError(c.cfg.Name, ai.ErrRateLimited, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ai.NewProviderError(c.cfg.Name, ai.ErrTimeout, err)
	default:
		return ai.NewProviderError(c.cfg.Name, ai.ErrProviderUnavailable, err)
	}
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
