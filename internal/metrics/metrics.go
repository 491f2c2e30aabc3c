// Package metrics provides the Prometheus collectors of the engine.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	checklistTransitions *prometheus.CounterVec // by action, result
	invariantRejections  *prometheus.CounterVec // by role
	persistenceFailures  *prometheus.CounterVec // by component, operation
	highlightsCommitted  prometheus.Counter
	annotationsSaved     *prometheus.CounterVec // by operation
	documentsReplaced    prometheus.Counter
	sseClients           prometheus.GaugeFunc
}

// New creates the collectors on a fresh registry. clients, when not nil,
// reports the number of connected event stream subscribers.
func New(clients func() int) (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.checklistTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verba_checklist_transitions_total",
			Help: "Checklist transitions by action (advance, regress, set) and result (applied, noop, rejected, failed)",
		},
		[]string{"action", "result"},
	)
	m.invariantRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verba_checklist_invariant_rejections_total",
			Help: "Check writes rejected because the reviewer check would exist without the preparer check",
		},
		[]string{"role"},
	)
	m.persistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verba_persistence_failures_total",
			Help: "Persistence calls that failed after the local state was already updated",
		},
		[]string{"component", "operation"},
	)
	m.highlightsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verba_highlights_committed_total",
		Help: "Highlights created from committed selections",
	})
	m.annotationsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verba_annotation_writes_total",
			Help: "Annotation writes by operation (create, move, content, color, connector, delete)",
		},
		[]string{"operation"},
	)
	m.documentsReplaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verba_documents_replaced_total",
		Help: "Source documents whose content changed on disk",
	})

	collectors := []prometheus.Collector{
		m.checklistTransitions,
		m.invariantRejections,
		m.persistenceFailures,
		m.highlightsCommitted,
		m.annotationsSaved,
		m.documentsReplaced,
	}
	if clients != nil {
		m.sseClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "verba_event_stream_clients",
			Help: "Connected event stream subscribers",
		}, func() float64 { return float64(clients()) })
		collectors = append(collectors, m.sseClients)
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Transition records a checklist transition outcome.
func (m *Metrics) Transition(action, result string) {
	if m == nil {
		return
	}
	m.checklistTransitions.WithLabelValues(action, result).Inc()
}

// InvariantRejected records a rejected check write.
func (m *Metrics) InvariantRejected(role string) {
	if m == nil {
		return
	}
	m.invariantRejections.WithLabelValues(role).Inc()
}

// PersistenceFailed records a failed persistence call.
func (m *Metrics) PersistenceFailed(component, operation string) {
	if m == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(component, operation).Inc()
}

// HighlightCommitted records n new highlights.
func (m *Metrics) HighlightCommitted(n int) {
	if m == nil {
		return
	}
	m.highlightsCommitted.Add(float64(n))
}

// AnnotationWrite records an annotation write.
func (m *Metrics) AnnotationWrite(operation string) {
	if m == nil {
		return
	}
	m.annotationsSaved.WithLabelValues(operation).Inc()
}

// DocumentReplaced records a replaced source document.
func (m *Metrics) DocumentReplaced() {
	if m == nil {
		return
	}
	m.documentsReplaced.Inc()
}
