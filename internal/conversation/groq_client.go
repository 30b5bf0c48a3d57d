package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

var groqTracer = otel.Tracer("zapbot.internal.conversation.groq")

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqModel   = "groq/compound"
)

// GroqLLMClient implements LLMClient against Groq's OpenAI-compatible
// chat completions API.
type GroqLLMClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewGroqLLMClient builds a Groq client. The apiKey here is the
// platform default; per-request keys override it for tenants that
// bring their own.
func NewGroqLLMClient(apiKey, baseURL, model string, timeout time.Duration, logger *logging.Logger) *GroqLLMClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGroqBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGroqModel
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GroqLLMClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// WithAPIKey returns a client that authenticates with a tenant's own
// key while sharing the HTTP client and settings.
func (c *GroqLLMClient) WithAPIKey(apiKey string) *GroqLLMClient {
	if strings.TrimSpace(apiKey) == "" {
		return c
	}
	clone := *c
	clone.apiKey = apiKey
	return &clone
}

type groqChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int32         `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
}

type groqChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int32 `json:"prompt_tokens"`
		CompletionTokens int32 `json:"completion_tokens"`
		TotalTokens      int32 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request and returns the reply text
// with token usage.
func (c *GroqLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if c.apiKey == "" {
		return LLMResponse{}, errors.New("conversation: groq api key missing")
	}
	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("conversation: groq requires at least one message")
	}

	ctx, span := groqTracer.Start(ctx, "conversation.groq.complete")
	defer span.End()

	model := req.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(attribute.String("zapbot.model", model))

	messages := make([]ChatMessage, 0, len(req.System)+len(req.Messages))
	for _, sys := range req.System {
		if strings.TrimSpace(sys) == "" {
			continue
		}
		messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: sys})
	}
	messages = append(messages, req.Messages...)

	bodyBytes, err := json.Marshal(groqChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: failed to marshal groq payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: failed to build groq request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: groq request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var parsed groqChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: failed to decode groq response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMsg := ""
		if parsed.Error != nil {
			errMsg = parsed.Error.Message
		}
		err := fmt.Errorf("conversation: groq returned status %d: %s", resp.StatusCode, errMsg)
		span.RecordError(err)
		c.logger.Warn("groq completion failed", "status", resp.StatusCode, "error", errMsg)
		return LLMResponse{}, err
	}

	if len(parsed.Choices) == 0 {
		return LLMResponse{}, errors.New("conversation: groq returned no choices")
	}

	return LLMResponse{
		Text:       strings.TrimSpace(parsed.Choices[0].Message.Content),
		StopReason: parsed.Choices[0].FinishReason,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}, nil
}
