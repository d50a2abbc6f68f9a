package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skirmish/pkg/netcode"
)

const metricsNamespace = "skirmish"

// Metrics 服务器指标
type Metrics struct {
	registry *prometheus.Registry

	AdmittedActions *prometheus.CounterVec
	RejectedActions *prometheus.CounterVec
	DiscardedWalks  prometheus.Counter
	ReplayedFrames  prometheus.Counter
	RevisedFrames   prometheus.Counter
	Pauses          prometheus.Counter
	Peers           *prometheus.GaugeVec
	OutboundBytes   *prometheus.CounterVec
	DroppedMessages *prometheus.CounterVec
	CurrentFrame    prometheus.Gauge
	HistoryRecords  prometheus.Gauge
}

// NewMetrics 在独立的 registry 上注册指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		AdmittedActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "admitted_actions_total",
			Help:      "Client actions written into the action ledger.",
		}, []string{"kind"}),
		RejectedActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejected_actions_total",
			Help:      "Client actions rejected by admission.",
		}, []string{"reason"}),
		DiscardedWalks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "discarded_walks_total",
			Help:      "Walk actions the origin client was told to retract.",
		}),
		ReplayedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replayed_frames_total",
			Help:      "Frames simulated by reconciliation, including the newest frame.",
		}),
		RevisedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "revised_frames_total",
			Help:      "Already simulated frames whose result changed on replay.",
		}),
		Pauses: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pauses_total",
			Help:      "Waiting-for-players pauses started.",
		}),
		Peers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peers",
			Help:      "Room peers by sync state.",
		}, []string{"state"}),
		OutboundBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbound_bytes_total",
			Help:      "Encoded bytes queued for sending.",
		}, []string{"delivery"}),
		DroppedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_messages_total",
			Help:      "Messages dropped before processing or sending.",
		}, []string{"reason"}),
		CurrentFrame: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "current_frame",
			Help:      "Latest simulated server frame.",
		}),
		HistoryRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "history_records",
			Help:      "Per-frame world updates retained for retransmission.",
		}),
	}
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// rejectReason 拒绝原因标签
func rejectReason(err error) string {
	switch errors.Cause(err) {
	case netcode.ErrRejectedBadlyLate:
		return "badly_late"
	case netcode.ErrRejectedTooFarAhead:
		return "too_far_ahead"
	case netcode.ErrRejectedNoFreeFrame:
		return "no_free_frame"
	case netcode.ErrRejectedMalformed:
		return "malformed"
	case netcode.ErrFrameTooOld:
		return "too_old"
	case netcode.ErrFutureFrame:
		return "not_reserved"
	}
	return "other"
}
