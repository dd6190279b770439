package index

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 索引的 prometheus 指标，nil 表示不统计
type Metrics struct {
	Puts            *prometheus.CounterVec
	Removes         *prometheus.CounterVec
	Duplicates      *prometheus.CounterVec
	Commits         *prometheus.CounterVec
	RebuildResults  *prometheus.CounterVec
	RebuildDuration *prometheus.HistogramVec
}

// NewMetrics reg 为 nil 时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Puts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "index",
			Name:      "puts",
		}, []string{"index"}),
		Removes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "index",
			Name:      "removes",
		}, []string{"index"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "index",
			Name:      "duplicate_keys",
		}, []string{"index"}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "index",
			Name:      "tx_commits",
		}, []string{"index", "result"}),
		RebuildResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docindex",
			Subsystem: "index",
			Name:      "rebuild_results",
		}, []string{"index", "result"}),
		RebuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docindex",
			Subsystem: "index",
			Name:      "rebuild_duration",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
		}, []string{"index"}),
	}
	if reg != nil {
		reg.MustRegister(m.Puts, m.Removes, m.Duplicates, m.Commits, m.RebuildResults, m.RebuildDuration)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) put(index string) {
	if m != nil {
		m.Puts.WithLabelValues(index).Inc()
	}
}

func (m *Metrics) remove(index string) {
	if m != nil {
		m.Removes.WithLabelValues(index).Inc()
	}
}

func (m *Metrics) duplicate(index string) {
	if m != nil {
		m.Duplicates.WithLabelValues(index).Inc()
	}
}

func (m *Metrics) commit(index string, err error) {
	if m != nil {
		m.Commits.WithLabelValues(index, result(err)).Inc()
	}
}

func (m *Metrics) rebuild(index string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RebuildResults.WithLabelValues(index, result(err)).Inc()
	m.RebuildDuration.WithLabelValues(index).Observe(time.Since(start).Seconds())
}
