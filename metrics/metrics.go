package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"cosmossdk.io/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	errorsmod "cosmossdk.io/errors"
)

// PromMetrics is safe to use through a nil pointer; every method is then a no-op.
type PromMetrics struct {
	Settlements     *prometheus.CounterVec
	OutboundSwaps   *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	WithdrawableFee prometheus.Gauge
}

// NewPromMetrics creates the bridge collectors and registers them on reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	// labels
	var (
		outcomeLabels   = []string{"outcome"}
		rejectionLabels = []string{"entry", "reason"}
	)

	m := &PromMetrics{
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_bridge_settlements_total",
			Help: "Inbound settlements by final outcome",
		}, outcomeLabels),
		OutboundSwaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_bridge_outbound_total",
			Help: "Outbound deposits by final outcome",
		}, outcomeLabels),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_bridge_rejections_total",
			Help: "Requests rejected before any custody change",
		}, rejectionLabels),
		WithdrawableFee: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swap_bridge_withdrawable_fee",
			Help: "Accrued transfer token fee not yet collected by the owner",
		}),
	}

	reg.MustRegister(m.Settlements, m.OutboundSwaps, m.Rejections, m.WithdrawableFee)
	return m
}

// InitPromMetrics registers the collectors on a fresh registry and serves it
// on /metrics at port.
func InitPromMetrics(logger log.Logger, port int16) *PromMetrics {
	reg := prometheus.NewRegistry()
	m := NewPromMetrics(reg)

	// Expose /metrics HTTP endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", "port", port, "err", err)
		}
	}()

	return m
}

func (m *PromMetrics) IncSettlement(outcome string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome).Inc()
}

func (m *PromMetrics) IncOutbound(outcome string) {
	if m == nil {
		return
	}
	m.OutboundSwaps.WithLabelValues(outcome).Inc()
}

// IncRejection counts a rejected request under the registered error description.
func (m *PromMetrics) IncRejection(entry string, err error) {
	if m == nil || err == nil {
		return
	}
	reason := "unknown"
	var coded *errorsmod.Error
	if errors.As(err, &coded) {
		reason = coded.Error()
	}
	m.Rejections.WithLabelValues(entry, reason).Inc()
}

func (m *PromMetrics) SetWithdrawableFee(fee float64) {
	if m == nil {
		return
	}
	m.WithdrawableFee.Set(fee)
}
