package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
	"github.com/zapdeskhq/zapbot-platform/internal/ratelimit"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

const (
	replyMaxTokens   = 150
	replyTemperature = 0.7
	defaultLLMBudget = 15 * time.Second
)

// Responder turns a prepared context window into the bot's next reply.
// Every AI call goes through the rate limiter; when the provider cannot
// be reached the tenant's canned fallback goes out instead.
type Responder struct {
	llm     LLMClient
	limiter *ratelimit.AILimiter
	budget  time.Duration
	logger  *logging.Logger
}

// NewResponder builds a responder. budget bounds a single AI call;
// zero means the default.
func NewResponder(llm LLMClient, limiter *ratelimit.AILimiter, budget time.Duration, logger *logging.Logger) *Responder {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if limiter == nil {
		panic("conversation: ai limiter cannot be nil")
	}
	if budget <= 0 {
		budget = defaultLLMBudget
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{
		llm:     llm,
		limiter: limiter,
		budget:  budget,
		logger:  logger,
	}
}

// Reply is the outcome of one reply generation.
type Reply struct {
	Text string
	// FromAI is false when the canned fallback was used.
	FromAI bool
	Usage  TokenUsage
}

// Generate produces the next reply for a customer message. window is
// the retained prior context, oldest first.
func (r *Responder) Generate(ctx context.Context, profile *business.Profile, products []business.Product, credential string, window []ChatMessage, userText string, returning bool) Reply {
	decision := r.limiter.CanCall(credential)
	if !decision.Allowed && decision.DelayNeeded > 0 {
		var err error
		decision, err = r.limiter.Wait(ctx, credential)
		if err != nil {
			return Reply{Text: profile.EffectiveFallbackReply()}
		}
	}
	if !decision.Allowed {
		r.logger.Warn("reply generation rate limited, sending fallback",
			"reason", decision.Reason,
			"retry_after_s", int(decision.RetryAfter.Seconds())+1,
		)
		return Reply{Text: profile.EffectiveFallbackReply()}
	}

	messages := make([]ChatMessage, 0, len(window)+1)
	messages = append(messages, window...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: userText})

	callCtx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	resp, err := r.llm.Complete(callCtx, LLMRequest{
		System:      []string{BuildSystemPrompt(profile, products, returning)},
		Messages:    messages,
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	})
	if err != nil {
		r.logger.Warn("reply generation failed, sending fallback", "error", err)
		return Reply{Text: profile.EffectiveFallbackReply()}
	}
	r.limiter.RecordUsage(credential, int(resp.Usage.TotalTokens))

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		r.logger.Warn("reply generation returned empty text, sending fallback")
		return Reply{Text: profile.EffectiveFallbackReply(), Usage: resp.Usage}
	}
	return Reply{Text: text, FromAI: true, Usage: resp.Usage}
}

// BuildSystemPrompt assembles the tenant-specific system prompt.
func BuildSystemPrompt(profile *business.Profile, products []business.Product, returning bool) string {
	var b strings.Builder

	name := "a empresa"
	if profile != nil && strings.TrimSpace(profile.CompanyName) != "" {
		name = profile.CompanyName
	}
	fmt.Fprintf(&b, "Você é o atendente virtual de %s no WhatsApp.\n", name)

	if profile != nil {
		if profile.BusinessDescription != "" {
			fmt.Fprintf(&b, "Sobre o negócio: %s\n", profile.BusinessDescription)
		}
		if profile.OpeningHours != "" {
			fmt.Fprintf(&b, "Horário de funcionamento: %s\n", profile.OpeningHours)
		}
		if profile.Address != "" {
			fmt.Fprintf(&b, "Endereço: %s\n", profile.Address)
		}
		if profile.DeliveryAvailable {
			b.WriteString("Fazemos entregas")
			if profile.DeliveryFeeCents > 0 {
				fee := strings.Replace(fmt.Sprintf("%.2f", float64(profile.DeliveryFeeCents)/100), ".", ",", 1)
				fmt.Fprintf(&b, " (taxa de R$ %s)", fee)
			}
			b.WriteString(".\n")
		}
		if profile.BotPersonality != "" {
			fmt.Fprintf(&b, "Tom de voz: %s\n", profile.BotPersonality)
		}
	}

	b.WriteString("\n")
	b.WriteString(business.FormatProductsForPrompt(products))
	b.WriteString("\n\n")

	if returning {
		b.WriteString("O cliente está voltando depois de um tempo; cumprimente-o brevemente antes de responder.\n")
	}

	b.WriteString(`Regras:
- Responda sempre em português, em mensagens curtas adequadas ao WhatsApp.
- Use apenas os preços e produtos listados acima; nunca invente valores.
- Se não souber responder ou o cliente pedir algo fora do seu alcance, diga que vai chamar um atendente.`)

	return b.String()
}
