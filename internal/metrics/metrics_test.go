package metrics

import (
	"testing"

	metrictestutil "github.com/caesium-cloud/sweep/internal/metrics/testutil"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/suite"
)

type MetricsSuite struct {
	suite.Suite
	registry *prometheus.Registry
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsSuite))
}

func (s *MetricsSuite) SetupTest() {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		UnitsGeneratedTotal,
		UnitsDuplicateTotal,
		UnitsSubmittedTotal,
		SubmitAttemptsTotal,
		TasksGatheredTotal,
		ResultRowsTotal,
		GatherSkippedTotal,
		GatherDurationSeconds,
		Units,
	)
}

func (s *MetricsSuite) TestUnitsGeneratedTotalIncrements() {
	UnitsGeneratedTotal.WithLabelValues("preprocess").Add(4)
	UnitsDuplicateTotal.WithLabelValues("preprocess").Inc()

	val := metrictestutil.CounterValue(s.T(), UnitsGeneratedTotal, "preprocess")
	s.GreaterOrEqual(val, float64(4))

	val = metrictestutil.CounterValue(s.T(), UnitsDuplicateTotal, "preprocess")
	s.GreaterOrEqual(val, float64(1))
}

func (s *MetricsSuite) TestTasksGatheredTotalIncrements() {
	TasksGatheredTotal.WithLabelValues("sixtrack", "Success").Inc()
	TasksGatheredTotal.WithLabelValues("sixtrack", "Failed").Inc()
	TasksGatheredTotal.WithLabelValues("sixtrack", "Failed").Inc()

	val := metrictestutil.CounterValue(s.T(), TasksGatheredTotal, "sixtrack", "Success")
	s.GreaterOrEqual(val, float64(1))

	val = metrictestutil.CounterValue(s.T(), TasksGatheredTotal, "sixtrack", "Failed")
	s.GreaterOrEqual(val, float64(2))
}

func (s *MetricsSuite) TestResultRowsTotalAdds() {
	ResultRowsTotal.WithLabelValues("sixtrack", "valid").Add(99)
	ResultRowsTotal.WithLabelValues("sixtrack", "sentinel").Inc()

	val := metrictestutil.CounterValue(s.T(), ResultRowsTotal, "sixtrack", "valid")
	s.GreaterOrEqual(val, float64(99))
}

func (s *MetricsSuite) TestGatherDurationObserves() {
	GatherDurationSeconds.WithLabelValues("preprocess").Observe(2.5)

	families, err := s.registry.Gather()
	s.Require().NoError(err)

	found := false
	for _, fam := range families {
		if fam.GetName() == "sweep_gather_duration_seconds" {
			for _, m := range fam.GetMetric() {
				h := m.GetHistogram()
				if h != nil && h.GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	s.True(found, "expected histogram sample")
}

func (s *MetricsSuite) TestUnitsGauge() {
	Units.WithLabelValues("preprocess", "complete").Set(3)

	val := s.gaugeValue(Units, "preprocess", "complete")
	s.Equal(float64(3), val)
}

func (s *MetricsSuite) TestRegisterIdempotent() {
	s.NotPanics(func() {
		Register()
		Register()
	})
}

func (s *MetricsSuite) gaugeValue(vec *prometheus.GaugeVec, labels ...string) float64 {
	var m dto.Metric
	gauge, err := vec.GetMetricWithLabelValues(labels...)
	s.Require().NoError(err)
	s.Require().NoError(gauge.(prometheus.Metric).Write(&m))
	return m.GetGauge().GetValue()
}
