package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the message pipeline.
type BotMetrics struct {
	inboundTotal      *prometheus.CounterVec
	repliesTotal      *prometheus.CounterVec
	transfersTotal    *prometheus.CounterVec
	quotaDeniedTotal  *prometheus.CounterVec
	aiCallLatency     *prometheus.HistogramVec
	aiTokensTotal     *prometheus.CounterVec
	webhookJobLatency prometheus.Histogram
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapbot",
			Subsystem: "pipeline",
			Name:      "inbound_total",
			Help:      "Total inbound WhatsApp messages by handling outcome",
		}, []string{"instance", "outcome"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapbot",
			Subsystem: "pipeline",
			Name:      "replies_total",
			Help:      "Total outbound replies by source (ai, fallback, welcome, transfer)",
		}, []string{"instance", "source"}),
		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapbot",
			Subsystem: "pipeline",
			Name:      "transfers_total",
			Help:      "Total conversations handed off to human agents",
		}, []string{"instance"}),
		quotaDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapbot",
			Subsystem: "ratelimit",
			Name:      "quota_denied_total",
			Help:      "Total sends or AI calls denied by a rate limiter",
		}, []string{"instance", "limiter"}),
		aiCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zapbot",
			Subsystem: "ai",
			Name:      "call_latency_seconds",
			Help:      "Latency of AI provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		aiTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapbot",
			Subsystem: "ai",
			Name:      "tokens_total",
			Help:      "Total tokens reported by the AI provider",
		}, []string{"instance"}),
		webhookJobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zapbot",
			Subsystem: "pipeline",
			Name:      "job_latency_seconds",
			Help:      "End-to-end latency of inbound job processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.repliesTotal, m.transfersTotal,
		m.quotaDeniedTotal, m.aiCallLatency, m.aiTokensTotal, m.webhookJobLatency)
	return m
}

func (m *BotMetrics) ObserveInbound(instance, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(instance, outcome).Inc()
}

func (m *BotMetrics) ObserveReply(instance, source string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(instance, source).Inc()
}

func (m *BotMetrics) ObserveTransfer(instance string) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(instance).Inc()
}

func (m *BotMetrics) ObserveQuotaDenied(instance, limiter string) {
	if m == nil {
		return
	}
	m.quotaDeniedTotal.WithLabelValues(instance, limiter).Inc()
}

func (m *BotMetrics) ObserveAICall(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.aiCallLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *BotMetrics) ObserveAITokens(instance string, tokens int) {
	if m == nil {
		return
	}
	if tokens > 0 {
		m.aiTokensTotal.WithLabelValues(instance).Add(float64(tokens))
	}
}

func (m *BotMetrics) ObserveJobLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookJobLatency.Observe(seconds)
}
