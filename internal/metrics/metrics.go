package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics are the controller-specific series. They plug into the protocol
// handler as an observer, into discovery as a probe recorder, and into the
// device as a transition hook.
type Metrics struct {
	Commands        *prometheus.CounterVec   // labels: code, result
	CommandErrors   *prometheus.CounterVec   // labels: kind
	CommandDuration *prometheus.HistogramVec // labels: code
	Probes          *prometheus.CounterVec   // labels: stage, baud, result
	Transitions     *prometheus.CounterVec   // labels: from, to
	Mode            prometheus.Gauge
	ControlRejected *prometheus.CounterVec // labels: reason
}

// New registers and returns the controller metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumidox_commands_total",
			Help: "Command round trips by command code and result.",
		}, []string{"code", "result"}),
		CommandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumidox_command_errors_total",
			Help: "Failed command round trips by error kind.",
		}, []string{"kind"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lumidox_command_duration_seconds",
			Help:    "Command round trip latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"code"}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumidox_probes_total",
			Help: "Discovery probes by stage, baud rate and result.",
		}, []string{"stage", "baud", "result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumidox_mode_transitions_total",
			Help: "Confirmed device mode transitions.",
		}, []string{"from", "to"}),
		Mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumidox_mode",
			Help: "Current device mode (-1 unknown, 0 local, 1 standby, 2 armed, 3 remote).",
		}),
		ControlRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumidox_control_rejected_total",
			Help: "Control requests refused before reaching the device.",
		}, []string{"reason"}),
	}
	m.Mode.Set(float64(device.ModeUnknown))
	reg.MustRegister(m.Commands, m.CommandErrors, m.CommandDuration, m.Probes, m.Transitions, m.Mode, m.ControlRejected)
	return m
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveExchange implements protocol.Observer.
func (m *Metrics) ObserveExchange(e protocol.Exchange) {
	m.Commands.WithLabelValues(e.Code, result(e.Err == nil)).Inc()
	m.CommandDuration.WithLabelValues(e.Code).Observe(e.Duration.Seconds())
	if e.Err != nil {
		m.CommandErrors.WithLabelValues(errs.KindOf(e.Err)).Inc()
	}
}

// ObserveProbe implements discovery.ProbeRecorder.
func (m *Metrics) ObserveProbe(stage, _ string, baud int, ok bool) {
	m.Probes.WithLabelValues(stage, strconv.Itoa(baud), result(ok)).Inc()
}

// ObserveTransition has the signature of device.TransitionHook.
func (m *Metrics) ObserveTransition(from, to device.Mode) {
	m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.Mode.Set(float64(to))
}
