package messaging

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

	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

var evolutionTracer = otel.Tracer("zapbot.internal.messaging.evolution")

// EvolutionClient sends WhatsApp messages through an Evolution API
// server. One server hosts many instances; the instance name selects
// the tenant's connected number.
type EvolutionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

var _ conversation.Messenger = (*EvolutionClient)(nil)

// NewEvolutionClient builds a client for an Evolution API server.
func NewEvolutionClient(baseURL, apiKey string, logger *logging.Logger) *EvolutionClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &EvolutionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// SendText dispatches a plain text message to a customer JID.
func (c *EvolutionClient) SendText(ctx context.Context, instanceName, toJID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("messaging: text required")
	}
	payload := map[string]any{
		"number": numberFromJID(toJID),
		"text":   text,
	}
	return c.post(ctx, "/message/sendText/"+instanceName, instanceName, toJID, payload)
}

// SendMedia dispatches an image with an optional caption, used for
// product pictures.
func (c *EvolutionClient) SendMedia(ctx context.Context, instanceName, toJID, mediaURL, caption string) error {
	if strings.TrimSpace(mediaURL) == "" {
		return errors.New("messaging: media url required")
	}
	payload := map[string]any{
		"number":    numberFromJID(toJID),
		"mediatype": "image",
		"media":     mediaURL,
		"caption":   caption,
	}
	return c.post(ctx, "/message/sendMedia/"+instanceName, instanceName, toJID, payload)
}

func (c *EvolutionClient) post(ctx context.Context, path, instanceName, toJID string, payload map[string]any) error {
	if c.baseURL == "" {
		return errors.New("messaging: evolution base url missing")
	}
	if c.apiKey == "" {
		return errors.New("messaging: evolution api key missing")
	}
	if toJID == "" {
		return errors.New("messaging: recipient required")
	}

	ctx, span := evolutionTracer.Start(ctx, "messaging.evolution.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("zapbot.instance", instanceName),
		attribute.String("zapbot.endpoint", path),
	)

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: failed to marshal evolution payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("messaging: failed to build evolution request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("evolution send failed", "error", err, "instance", instanceName)
		return fmt.Errorf("messaging: evolution request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		err := fmt.Errorf("messaging: evolution send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		c.logger.Error("evolution send rejected", "status", resp.StatusCode, "instance", instanceName)
		return err
	}

	c.logger.Info("whatsapp message sent", "instance", instanceName, "to", numberFromJID(toJID))
	return nil
}

// numberFromJID strips the WhatsApp domain suffix; Evolution accepts
// the bare number.
func numberFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i > 0 {
		return jid[:i]
	}
	return jid
}
