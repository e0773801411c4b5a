package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/perfgo/testpulse/model"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	LabelStatus = "status"
	LabelTest   = "test"
)

type metrics struct {
	tests          *prometheus.GaugeVec
	flaky          prometheus.Gauge
	slow           prometheus.Gauge
	passRate       prometheus.Gauge
	duration       prometheus.Gauge
	flakinessScore *prometheus.GaugeVec
}

func newMetrics() *metrics {
	return &metrics{
		tests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "testpulse_tests",
			Help: "Number of tests in the last run by final status",
		}, []string{LabelStatus}),
		flaky: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testpulse_flaky_tests",
			Help: "Number of tests whose flakiness score reached the flaky threshold",
		}),
		slow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testpulse_slow_tests",
			Help: "Number of tests slower than their historical average",
		}),
		passRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testpulse_pass_rate_percent",
			Help: "Rounded percentage of passed tests in the last run",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testpulse_run_duration_seconds",
			Help: "Wall clock duration of the last run",
		}),
		flakinessScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "testpulse_test_flakiness_score",
			Help: "Fraction of failed outcomes in the history window of a test",
		}, []string{LabelTest}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.tests, m.flaky, m.slow, m.passRate, m.duration, m.flakinessScore)
}

func (m *metrics) observe(rep *model.Report) {
	s := rep.Summary.RunSummary
	m.tests.WithLabelValues(string(model.StatusPassed)).Set(float64(s.Passed))
	m.tests.WithLabelValues(string(model.StatusFailed)).Set(float64(s.Failed))
	m.tests.WithLabelValues(string(model.StatusSkipped)).Set(float64(s.Skipped))
	m.tests.WithLabelValues(string(model.StatusTimedOut)).Set(float64(s.TimedOut))
	m.tests.WithLabelValues(string(model.StatusInterrupted)).Set(float64(s.Interrupted))
	m.flaky.Set(float64(s.Flaky))
	m.slow.Set(float64(s.Slow))
	m.passRate.Set(float64(s.PassRate))
	m.duration.Set(s.Duration.Seconds())

	for _, r := range rep.Results {
		if r.FlakinessScore == nil {
			continue
		}
		m.flakinessScore.WithLabelValues(string(r.ID)).Set(*r.FlakinessScore)
	}
}

// WriteMetrics writes the run's gauges in the Prometheus text format to
// path, for collection by the node exporter textfile collector.
func WriteMetrics(path string, rep *model.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := newMetrics()
	m.register(reg)
	m.observe(rep)

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
