package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zapdeskhq/zapbot-platform/internal/business"
	"github.com/zapdeskhq/zapbot-platform/internal/ratelimit"
)

func newTestAnalyzer(llm LLMClient) *IntentAnalyzer {
	return NewIntentAnalyzer(llm, ratelimit.NewAILimiter(ratelimit.DefaultAILimits(), nil), nil)
}

func TestAnalyze_TransferKeywordWinsWithoutLLM(t *testing.T) {
	llm := &stubLLM{resp: LLMResponse{Text: `{"intent":"other","confidence":0.9,"should_transfer":false}`}}
	analyzer := newTestAnalyzer(llm)
	profile := &business.Profile{}

	got := analyzer.Analyze(context.Background(), profile, "cred", "Quero falar com um ATENDENTE agora")
	if !got.ShouldTransfer || got.Intent != IntentTransfer {
		t.Fatalf("expected transfer, got %+v", got)
	}
	if !strings.Contains(got.TransferReason, "palavra-chave") {
		t.Errorf("reason must name the keyword trigger: %q", got.TransferReason)
	}
	if llm.calls != 0 {
		t.Errorf("keyword transfer must not call the LLM, calls=%d", llm.calls)
	}
}

func TestAnalyze_CustomKeywords(t *testing.T) {
	analyzer := newTestAnalyzer(nil)
	profile := &business.Profile{TransferKeywords: []string{"gerente"}}

	got := analyzer.Analyze(context.Background(), profile, "cred", "chama o gerente por favor")
	if !got.ShouldTransfer {
		t.Fatalf("custom keyword must trigger transfer: %+v", got)
	}

	// The default keywords are replaced, not appended.
	got = analyzer.Analyze(context.Background(), profile, "cred", "quero falar com um humano")
	if got.ShouldTransfer {
		t.Fatalf("default keyword must not apply when tenant configured its own: %+v", got)
	}
}

func TestAnalyze_LLMClassification(t *testing.T) {
	llm := &stubLLM{resp: LLMResponse{
		Text:  `{"intent":"purchase","confidence":0.85,"should_transfer":false,"reason":""}`,
		Usage: TokenUsage{TotalTokens: 180},
	}}
	analyzer := newTestAnalyzer(llm)

	got := analyzer.Analyze(context.Background(), &business.Profile{}, "cred", "quero fechar o pedido da pizza grande")
	if got.Intent != IntentPurchase || got.Confidence != 0.85 || got.ShouldTransfer {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if llm.calls != 1 {
		t.Errorf("llm calls = %d", llm.calls)
	}
}

func TestAnalyze_LLMTransferSuggestion(t *testing.T) {
	llm := &stubLLM{resp: LLMResponse{
		Text: `{"intent":"support","confidence":0.9,"should_transfer":true,"reason":"Reclamação sobre pedido errado"}`,
	}}
	analyzer := newTestAnalyzer(llm)

	got := analyzer.Analyze(context.Background(), &business.Profile{}, "cred", "meu pedido veio errado de novo!!!")
	if !got.ShouldTransfer || got.Intent != IntentTransfer {
		t.Fatalf("expected transfer, got %+v", got)
	}
	if got.TransferReason != "Reclamação sobre pedido errado" {
		t.Errorf("reason = %q", got.TransferReason)
	}
}

func TestAnalyze_MalformedJSONFallsBack(t *testing.T) {
	cases := []string{
		`Claro! Aqui está a classificação: purchase`,
		`{"intent":"buy_now","confidence":0.9,"should_transfer":false}`,
		`{"intent":"purchase","confidence":1.7,"should_transfer":false}`,
		`{"intent":"purchase","confidence":0.9,"should_transfer":false,"extra":"field"}`,
	}
	for _, raw := range cases {
		llm := &stubLLM{resp: LLMResponse{Text: raw}}
		analyzer := newTestAnalyzer(llm)

		got := analyzer.Analyze(context.Background(), &business.Profile{}, "cred", "quanto custa a pizza?")
		if got.Intent != IntentPurchase || got.Confidence != 0.7 || !got.ShouldTransfer {
			t.Errorf("raw %q: expected keyword fallback purchase/0.7/transfer, got %+v", raw, got)
		}
	}
}

func TestClassifyByKeywords(t *testing.T) {
	cases := []struct {
		text           string
		intent         string
		confidence     float64
		shouldTransfer bool
	}{
		{"quanto custa o produto?", IntentPurchase, 0.7, true},
		{"quero comprar duas pizzas grandes", IntentPurchase, 0.7, true},
		{"aceito, pode fechar no pix", IntentPurchase, 0.7, true},
		{"como funciona a entrega?", IntentProspect, 0.6, false},
		// A prospecting signal wins a mixed message: still researching.
		{"quero saber mais informação sobre o preço", IntentProspect, 0.6, false},
		{"boa tarde!", IntentOther, 0.5, false},
	}
	for _, tc := range cases {
		got := classifyByKeywords(strings.ToLower(tc.text))
		if got.Intent != tc.intent || got.Confidence != tc.confidence || got.ShouldTransfer != tc.shouldTransfer {
			t.Errorf("%q: got %+v, want intent=%s confidence=%v transfer=%v",
				tc.text, got, tc.intent, tc.confidence, tc.shouldTransfer)
		}
	}
}

func TestClassifyByKeywords_PurchaseTransferCarriesReason(t *testing.T) {
	got := classifyByKeywords("quanto custa o produto?")
	if !got.ShouldTransfer || got.TransferReason == "" {
		t.Fatalf("purchase fallback must transfer with a reason: %+v", got)
	}
}

func TestAnalyze_FencedJSONAccepted(t *testing.T) {
	llm := &stubLLM{resp: LLMResponse{
		Text: "```json\n{\"intent\":\"prospect\",\"confidence\":0.8,\"should_transfer\":false,\"reason\":\"\"}\n```",
	}}
	analyzer := newTestAnalyzer(llm)

	got := analyzer.Analyze(context.Background(), &business.Profile{}, "cred", "vocês têm cardápio?")
	if got.Intent != IntentProspect || got.Confidence != 0.8 {
		t.Fatalf("fenced JSON must parse: %+v", got)
	}
}

func TestAnalyze_LLMErrorFallsBack(t *testing.T) {
	llm := &stubLLM{err: errors.New("provider down")}
	analyzer := newTestAnalyzer(llm)

	got := analyzer.Analyze(context.Background(), &business.Profile{}, "cred", "como funciona a entrega?")
	if got.Intent != IntentProspect || got.Confidence != 0.6 {
		t.Fatalf("expected prospect keyword fallback, got %+v", got)
	}
}

func TestAnalyze_RateLimitedUsesKeywords(t *testing.T) {
	llm := &stubLLM{resp: LLMResponse{Text: `{"intent":"purchase","confidence":0.9,"should_transfer":false}`}}
	limiter := ratelimit.NewAILimiter(ratelimit.AILimits{
		RequestsPerMinute: 1,
		TokensPerMinute:   100,
		EstimatedTokensPerCall: 500,
	}, nil)
	analyzer := NewIntentAnalyzer(llm, limiter, nil)

	// With 1 RPM the 0.9 safety ceiling rounds down to zero, so the
	// limiter denies the call outright.
	got := analyzer.Analyze(context.Background(), &business.Profile{}, "cred", "mensagem qualquer")
	if got.Intent != IntentOther || got.Confidence != 0.5 {
		t.Fatalf("expected keyword fallback, got %+v", got)
	}
	if llm.calls != 0 {
		t.Errorf("rate-limited analysis must not call the LLM, calls=%d", llm.calls)
	}
}
