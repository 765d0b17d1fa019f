// Package metrics exposes Prometheus collectors for link issuance and refresh
// Package metrics 提供链接签发与刷新的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "doclink"

// Refresh outcome labels
const (
	OutcomeRefreshed  = "refreshed"
	OutcomeUnchanged  = "unchanged"
	OutcomeUnparsable = "unparsable"
	OutcomeFailed     = "signer_failure"
	OutcomeCancelled  = "cancelled"
)

// Metrics 链接服务指标集合，nil 值可安全调用
type Metrics struct {
	linksIssued           *prometheus.CounterVec
	linkRefreshes         *prometheus.CounterVec
	conversationRefreshes *prometheus.CounterVec
	conversationDuration  prometheus.Histogram
}

// New 创建并注册指标
// reg 为 nil 时只创建不注册
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		linksIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_issued_total",
			Help:      "Document links issued, by result.",
		}, []string{"result"}),
		linkRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_refreshes_total",
			Help:      "Link refresh attempts, by outcome.",
		}, []string{"outcome"}),
		conversationRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_refreshes_total",
			Help:      "Conversation refresh passes, by whether any link changed.",
		}, []string{"changed"}),
		conversationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_refresh_duration_seconds",
			Help:      "Time spent refreshing the links of one conversation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.linksIssued, m.linkRefreshes, m.conversationRefreshes, m.conversationDuration)
	}
	return m
}

// LinkIssued 记录一次签发
func (m *Metrics) LinkIssued(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.linksIssued.WithLabelValues(result).Inc()
}

// LinkRefresh 记录单个链接的刷新结果
func (m *Metrics) LinkRefresh(outcome string) {
	if m == nil {
		return
	}
	m.linkRefreshes.WithLabelValues(outcome).Inc()
}

// ConversationRefresh 记录一次会话刷新
func (m *Metrics) ConversationRefresh(changed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	m.conversationRefreshes.WithLabelValues(label).Inc()
	m.conversationDuration.Observe(elapsed.Seconds())
}
