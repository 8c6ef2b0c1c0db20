// Package metrics exports the control loop's state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pifan/internal/fancontrol"
)

// Metrics implements fancontrol.Observer.
type Metrics struct {
	registry *prometheus.Registry

	temperature  prometheus.Gauge
	tempCelsius  prometheus.Gauge
	average      prometheus.Gauge
	speed        prometheus.Gauge
	dutyPercent  prometheus.Gauge
	correction   prometheus.Gauge
	active       prometheus.Gauge
	ticks        prometheus.Counter
	sensorErrors prometheus.Counter
	dutyWrites   prometheus.Counter
}

var _ fancontrol.Observer = (*Metrics)(nil)

// New registers the fan metrics, plus the Go and process collectors, on a
// private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pifan_temperature_units",
			Help: "Last temperature fed to the controller, in millidegrees >> 10.",
		}),
		tempCelsius: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pifan_temperature_celsius",
			Help: "Last temperature fed to the controller, approximately in degrees Celsius.",
		}),
		average: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pifan_temperature_average_units",
			Help: "Moving average of the temperature history.",
		}),
		speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pifan_speed",
			Help: "Commanded fan speed in duty steps.",
		}),
		dutyPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pifan_duty_percent",
			Help: "Commanded PWM duty cycle in percent.",
		}),
		correction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pifan_correction",
			Help: "Speed correction accumulator.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pifan_active",
			Help: "1 while the fan is in the active state.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pifan_ticks_total",
			Help: "Control ticks evaluated.",
		}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pifan_sensor_errors_total",
			Help: "Failed temperature reads.",
		}),
		dutyWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pifan_duty_writes_total",
			Help: "Duty commands written to the actuator.",
		}),
	}

	m.registry.MustRegister(
		m.temperature,
		m.tempCelsius,
		m.average,
		m.speed,
		m.dutyPercent,
		m.correction,
		m.active,
		m.ticks,
		m.sensorErrors,
		m.dutyWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveTick(s fancontrol.Snapshot) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.temperature.Set(float64(s.Temp))
	m.tempCelsius.Set(s.TempC)
	m.average.Set(float64(s.Average))
	m.speed.Set(float64(s.Speed))
	m.dutyPercent.Set(s.DutyPercent)
	m.correction.Set(float64(s.Correction))
	if s.Active {
		m.active.Set(1)
	} else {
		m.active.Set(0)
	}
}

func (m *Metrics) SensorError() {
	if m == nil {
		return
	}
	m.sensorErrors.Inc()
}

func (m *Metrics) DutyWritten(v int) {
	if m == nil {
		return
	}
	m.dutyWrites.Inc()
	m.speed.Set(float64(v))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
