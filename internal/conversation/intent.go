package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
	"github.com/zapdeskhq/zapbot-platform/internal/ratelimit"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// Recognized intents, roughly ordered by commercial value.
const (
	IntentPurchase = "purchase"
	IntentProspect = "prospect"
	IntentSupport  = "support"
	IntentTransfer = "transfer"
	IntentOther    = "other"
)

// IntentAnalysis is the classification of one customer message.
type IntentAnalysis struct {
	Intent         string  `json:"intent"`
	Confidence     float64 `json:"confidence"`
	ShouldTransfer bool    `json:"should_transfer"`
	TransferReason string  `json:"reason,omitempty"`
}

// IntentAnalyzer classifies customer messages. Transfer keywords are
// checked before anything else; the LLM only runs when the rate
// limiter allows it, and a keyword heuristic covers the rest.
type IntentAnalyzer struct {
	llm     LLMClient
	limiter *ratelimit.AILimiter
	logger  *logging.Logger
}

// NewIntentAnalyzer builds an analyzer. A nil llm disables the LLM
// path entirely and only keywords are used.
func NewIntentAnalyzer(llm LLMClient, limiter *ratelimit.AILimiter, logger *logging.Logger) *IntentAnalyzer {
	if limiter == nil {
		panic("conversation: ai limiter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IntentAnalyzer{
		llm:     llm,
		limiter: limiter,
		logger:  logger,
	}
}

// TransferKeyword reports whether text contains one of the tenant's
// handoff triggers and which one matched.
func TransferKeyword(profile *business.Profile, text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, kw := range profile.EffectiveTransferKeywords() {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

const intentSystemPrompt = `Você classifica mensagens de clientes de um atendimento via WhatsApp.
Responda APENAS com um objeto JSON neste formato, sem texto adicional:
{"intent": "purchase|prospect|support|other", "confidence": 0.0, "should_transfer": false, "reason": ""}
- "purchase": o cliente quer comprar ou fechar um pedido agora
- "prospect": o cliente pede informações sobre produtos, preços ou horários
- "support": o cliente tem um problema com um pedido existente
- "other": qualquer outra coisa
- "should_transfer": true somente se a mensagem exigir um atendente humano
- "reason": em português, por que a transferência é necessária`

// Analyze classifies one message. credential is the AI limiter key for
// the tenant's provider secret.
func (a *IntentAnalyzer) Analyze(ctx context.Context, profile *business.Profile, credential, text string) IntentAnalysis {
	lowered := strings.ToLower(text)

	if kw, ok := TransferKeyword(profile, text); ok {
		return IntentAnalysis{
			Intent:         IntentTransfer,
			Confidence:     1.0,
			ShouldTransfer: true,
			TransferReason: fmt.Sprintf("Cliente solicitou atendimento humano (palavra-chave: %s)", kw),
		}
	}

	if a.llm == nil {
		return classifyByKeywords(lowered)
	}

	decision := a.limiter.CanCall(credential)
	if !decision.Allowed && decision.DelayNeeded > 0 {
		var err error
		decision, err = a.limiter.Wait(ctx, credential)
		if err != nil {
			return classifyByKeywords(lowered)
		}
	}
	if !decision.Allowed {
		a.logger.Warn("intent classification rate limited, using keywords",
			"reason", decision.Reason)
		return classifyByKeywords(lowered)
	}

	resp, err := a.llm.Complete(ctx, LLMRequest{
		System:      []string{intentSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens:   200,
		Temperature: 0.3,
	})
	if err != nil {
		a.logger.Warn("intent classification failed, using keywords", "error", err)
		return classifyByKeywords(lowered)
	}
	a.limiter.RecordUsage(credential, int(resp.Usage.TotalTokens))

	analysis, ok := decodeIntent(resp.Text)
	if !ok {
		a.logger.Warn("intent classification returned malformed JSON, using keywords",
			"raw", truncate(resp.Text, 200))
		return classifyByKeywords(lowered)
	}
	return analysis
}

// decodeIntent parses the model's JSON strictly. Anything unexpected
// fails closed so a hallucinated payload cannot steer the pipeline.
func decodeIntent(raw string) (IntentAnalysis, bool) {
	raw = strings.TrimSpace(raw)
	// Models occasionally wrap JSON in a markdown fence.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var analysis IntentAnalysis
	if err := dec.Decode(&analysis); err != nil {
		return IntentAnalysis{}, false
	}

	switch analysis.Intent {
	case IntentPurchase, IntentProspect, IntentSupport, IntentOther:
	default:
		return IntentAnalysis{}, false
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		return IntentAnalysis{}, false
	}
	if analysis.ShouldTransfer {
		analysis.Intent = IntentTransfer
		if strings.TrimSpace(analysis.TransferReason) == "" {
			analysis.TransferReason = "Transferência sugerida pela análise de intenção"
		}
	}
	return analysis, true
}

var purchaseKeywords = []string{
	"comprar", "quero comprar", "quero fechar", "fazer pedido", "realizar compra",
	"quanto custa", "preço", "preco", "valor", "pagamento", "cartão", "cartao",
	"pix", "boleto", "finalizar", "confirmar", "aceito", "vou comprar", "fechar negócio",
}

var prospectKeywords = []string{
	"informação", "informacao", "informações", "informacoes", "saber mais", "conhecer",
	"detalhes", "como funciona", "o que é", "explicar", "entender", "dúvida", "duvida",
	"pergunta", "curioso", "interessado", "pesquisando",
}

// classifyByKeywords is the heuristic used when the LLM is unavailable.
// A purchase signal with no prospecting signal means the customer is
// ready to close, and closing is a human's job: that combination
// transfers. Prospecting wins mixed messages and stays with the bot.
func classifyByKeywords(lowered string) IntentAnalysis {
	hasPurchase := containsAny(lowered, purchaseKeywords)
	hasProspect := containsAny(lowered, prospectKeywords)

	switch {
	case hasPurchase && !hasProspect:
		return IntentAnalysis{
			Intent:         IntentPurchase,
			Confidence:     0.7,
			ShouldTransfer: true,
			TransferReason: "Detectado interesse em compra",
		}
	case hasProspect:
		return IntentAnalysis{Intent: IntentProspect, Confidence: 0.6}
	default:
		return IntentAnalysis{Intent: IntentOther, Confidence: 0.5}
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
