package metrics

import (
	"github.com/DRSN-tech/brand-images/internal/usecase"
	"github.com/DRSN-tech/brand-images/pkg/ttlcache"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "brand_images"

// Pipeline реализует usecase.PipelineMetrics на счётчиках Prometheus.
type Pipeline struct {
	matches      *prometheus.CounterVec
	processed    *prometheus.CounterVec
	batches      *prometheus.CounterVec
	batchItems   *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// NewPipeline создаёт счётчики и регистрирует их в registerer.
func NewPipeline(registerer prometheus.Registerer) (*Pipeline, error) {
	m := &Pipeline{
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "results_total",
			Help:      "Match results by status and source",
		}, []string{"status", "source"}),

		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "products_total",
			Help:      "Processed products by status",
		}, []string{"status"}),

		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed batches by stage",
		}, []string{"stage"}),

		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Items in completed batches by stage",
		}, []string{"stage"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Match cache lookups by result",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.matches, m.processed, m.batches, m.batchItems, m.cacheLookups} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Pipeline) ObserveMatch(status usecase.MatchStatus, source usecase.MatchSource) {
	m.matches.WithLabelValues(string(status), string(source)).Inc()
}

func (m *Pipeline) ObserveProcess(status usecase.ProcessStatus) {
	m.processed.WithLabelValues(string(status)).Inc()
}

func (m *Pipeline) ObserveBatch(stage string, size int) {
	m.batches.WithLabelValues(stage).Inc()
	m.batchItems.WithLabelValues(stage).Add(float64(size))
}

// CacheObserver возвращает наблюдателя для ttlcache.Tiered.
func (m *Pipeline) CacheObserver() ttlcache.Observer {
	return func(result string) {
		m.cacheLookups.WithLabelValues(result).Inc()
	}
}
