// Package metrics exposes the Prometheus counters named in SPEC_FULL.md §6,
// following the donor example's use of client_golang for process metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge the scheduler emits.
type Metrics struct {
	TaskClaimedTotal         prometheus.Counter
	TaskFinishedTotal        prometheus.Counter
	TaskRetriedTotal         prometheus.Counter
	TaskFailedTerminalTotal  prometheus.Counter
	StreamLag                prometheus.Gauge
	DrainerLoopIntervalMs    prometheus.Gauge
	DrainerBatchFullness     prometheus.Gauge
	FinalizerForcedTotal     prometheus.Counter
}

// New registers every metric against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TaskClaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_claimed_total", Help: "Tasks claimed by the producer.",
		}),
		TaskFinishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_finished_total", Help: "Successful handler runs: tasks finished with GLOBAL_SUCCESS or rescheduled by a cron rule.",
		}),
		TaskRetriedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_retried_total", Help: "Tasks sent back to Pending for retry.",
		}),
		TaskFailedTerminalTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_failed_terminal_total", Help: "Tasks forced to Finish(GLOBAL_FAILURE).",
		}),
		StreamLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_lag", Help: "Pending entry count observed on the consumer's stream.",
		}),
		DrainerLoopIntervalMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drainer_loop_interval_ms", Help: "Current drainer loop sleep interval.",
		}),
		DrainerBatchFullness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drainer_batch_fullness", Help: "Fraction of max_read_count returned by the last drainer batch.",
		}),
		FinalizerForcedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_finalizer_forced_total", Help: "Times on_error itself failed and GLOBAL_FAILURE was forced (see Open Question).",
		}),
	}

	reg.MustRegister(
		m.TaskClaimedTotal, m.TaskFinishedTotal, m.TaskRetriedTotal, m.TaskFailedTerminalTotal,
		m.StreamLag, m.DrainerLoopIntervalMs, m.DrainerBatchFullness, m.FinalizerForcedTotal,
	)
	return m
}

func (m *Metrics) TaskClaimed()       { m.TaskClaimedTotal.Inc() }
func (m *Metrics) TaskFinished()      { m.TaskFinishedTotal.Inc() }
func (m *Metrics) TaskRetried()       { m.TaskRetriedTotal.Inc() }
func (m *Metrics) TaskFailedTerminal(){ m.TaskFailedTerminalTotal.Inc() }
func (m *Metrics) FinalizerForced()   { m.FinalizerForcedTotal.Inc() }
