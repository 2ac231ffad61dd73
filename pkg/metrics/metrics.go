// Package metrics 提供 Prometheus helper，覆盖网关的订阅、查询与路由指标
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// 消息路由计数，direction: in / out
	MessagesRouted *prometheus.CounterVec
	// 活跃物理订阅数
	SubscriptionsActive prometheus.Gauge
	// 活跃逻辑订阅者数
	SubscribersActive prometheus.Gauge
	// 各类查询队列深度
	LookupQueueDepth *prometheus.GaugeVec
	// 查询超时触发计数
	LookupTimeoutsFired prometheus.Counter
	// 重连回放的订阅计数
	ReplaysIssued prometheus.Counter
	// 上行合成应答计数
	AcksSynthesized prometheus.Counter
}

// New 创建指标实例
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": service}

	return &Metrics{
		registry: registry,
		MessagesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "gateway_messages_routed_total",
			Help:        "Messages dispatched by the gateway router.",
			ConstLabels: labels,
		}, []string{"direction"}),
		SubscriptionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gateway_subscriptions_active",
			Help:        "Live physical subscriptions at the venue.",
			ConstLabels: labels,
		}),
		SubscribersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "gateway_subscribers_active",
			Help:        "Logical subscribers multiplexed over physical subscriptions.",
			ConstLabels: labels,
		}),
		LookupQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "gateway_lookup_queue_depth",
			Help:        "Queued lookups per kind, head is in flight.",
			ConstLabels: labels,
		}, []string{"kind"}),
		LookupTimeoutsFired: factory.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_lookup_timeouts_fired_total",
			Help:        "Lookups answered by a synthetic timeout result.",
			ConstLabels: labels,
		}),
		ReplaysIssued: factory.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_replays_issued_total",
			Help:        "Subscriptions re-issued after reconnect.",
			ConstLabels: labels,
		}),
		AcksSynthesized: factory.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_acks_synthesized_total",
			Help:        "Per-subscriber acks fabricated by the gateway.",
			ConstLabels: labels,
		}),
	}
}

// ExposeHTTP 启动指标 HTTP 服务
func (m *Metrics) ExposeHTTP(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
