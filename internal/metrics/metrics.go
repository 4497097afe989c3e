// Package metrics records control loop activity as Prometheus metrics and
// writes them to a node-exporter textfile collector file.
package metrics

import (
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"amdgpu-fanctrl/internal/fancontrol"
)

// Recorder implements fancontrol.Observer. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry
	textfile string
	log      logr.Logger

	temperature *prometheus.GaugeVec
	pwm         *prometheus.GaugeVec
	updates     *prometheus.CounterVec
	tickErrors  *prometheus.CounterVec
}

// NewRecorder returns a recorder with its own registry. If textfile is
// non-empty the metrics are written there after every tick round.
func NewRecorder(textfile string, logger logr.Logger) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		log:      logger,
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amdgpu_fanctrl_temperature_millicelsius",
			Help: "Last temperature read by the controller, in milli-degrees Celsius.",
		}, []string{"controller"}),
		pwm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amdgpu_fanctrl_pwm_value",
			Help: "Last PWM value applied by the controller.",
		}, []string{"controller"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amdgpu_fanctrl_pwm_updates_total",
			Help: "Number of PWM values written to the actuator.",
		}, []string{"controller"}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amdgpu_fanctrl_tick_errors_total",
			Help: "Number of failed control cycles.",
		}, []string{"controller"}),
	}
	r.registry.MustRegister(r.temperature, r.pwm, r.updates, r.tickErrors)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

func (r *Recorder) ObserveTick(controller string, res fancontrol.TickResult) {
	if r == nil {
		return
	}
	r.temperature.WithLabelValues(controller).Set(float64(res.Temperature))
	if res.Updated {
		r.pwm.WithLabelValues(controller).Set(float64(res.PwmValue))
		r.updates.WithLabelValues(controller).Inc()
	}
}

func (r *Recorder) ObserveTickError(controller string, _ error) {
	if r == nil {
		return
	}
	r.tickErrors.WithLabelValues(controller).Inc()
}

// EndRound writes the textfile. Failures are logged and otherwise ignored;
// metrics must never stop fan control.
func (r *Recorder) EndRound() {
	if r == nil || r.textfile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(r.textfile, r.registry); err != nil {
		r.log.Error(err, "Writing metrics textfile failed", "path", r.textfile)
	}
}

var _ fancontrol.Observer = (*Recorder)(nil)
