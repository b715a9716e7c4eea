// Package metrics exposes the bot's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks promo code allocation and registration progress.
// It satisfies registration.Recorder.
type Metrics struct {
	CodesClaimed       prometheus.Counter
	PoolExhaustions    prometheus.Counter
	ClaimConflicts     prometheus.Counter
	PoolLeaks          prometheus.Counter
	RemindersSent      *prometheus.CounterVec
	UpdatesHandled     *prometheus.CounterVec
	UpdateDuration     prometheus.Histogram
	CodesAvailable     prometheus.Gauge
	CodesClaimedTotal  prometheus.Gauge
	ParticipantsStage  *prometheus.GaugeVec
	SheetsLastSyncUnix prometheus.Gauge
}

// New registers every instrument with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CodesClaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "promo_codes_issued_total",
			Help: "Total number of promo codes committed to participants",
		}),
		PoolExhaustions: f.NewCounter(prometheus.CounterOpts{
			Name: "promo_pool_exhausted_total",
			Help: "Confirmations that found no available promo code",
		}),
		ClaimConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "promo_claim_conflicts_total",
			Help: "Confirmations rejected by a uniqueness conflict at commit",
		}),
		PoolLeaks: f.NewCounter(prometheus.CounterOpts{
			Name: "promo_pool_leaks_total",
			Help: "Claimed codes that could not be returned to the pool",
		}),
		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promo_reminders_sent_total",
			Help: "Reminders delivered, by type",
		}, []string{"type"}),
		UpdatesHandled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promo_bot_updates_total",
			Help: "Telegram updates handled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		UpdateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "promo_bot_update_duration_seconds",
			Help:    "Duration of Telegram update handling",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CodesAvailable: f.NewGauge(prometheus.GaugeOpts{
			Name: "promo_codes_available",
			Help: "Promo codes currently available",
		}),
		CodesClaimedTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "promo_codes_claimed",
			Help: "Promo codes currently claimed",
		}),
		ParticipantsStage: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "promo_participants",
			Help: "Participants per registration stage",
		}, []string{"stage"}),
		SheetsLastSyncUnix: f.NewGauge(prometheus.GaugeOpts{
			Name: "promo_sheets_last_sync_timestamp_seconds",
			Help: "Unix time of the last successful sheets sync",
		}),
	}
}

func (m *Metrics) CodeClaimed()   { m.CodesClaimed.Inc() }
func (m *Metrics) PoolExhausted() { m.PoolExhaustions.Inc() }
func (m *Metrics) ClaimConflict() { m.ClaimConflicts.Inc() }
func (m *Metrics) PoolLeak()      { m.PoolLeaks.Inc() }

func (m *Metrics) ReminderSent(kind string) {
	m.RemindersSent.WithLabelValues(kind).Inc()
}

// ObserveUpdate records one handled update. Call with time.Now() taken at the start.
func (m *Metrics) ObserveUpdate(kind, outcome string, start time.Time) {
	m.UpdatesHandled.WithLabelValues(kind, outcome).Inc()
	m.UpdateDuration.Observe(time.Since(start).Seconds())
}

// SetPool publishes the current inventory sizes.
func (m *Metrics) SetPool(available, claimed int64) {
	m.CodesAvailable.Set(float64(available))
	m.CodesClaimedTotal.Set(float64(claimed))
}

// SetStages publishes participant counts per stage.
func (m *Metrics) SetStages(byStage map[string]int64) {
	for stage, n := range byStage {
		m.ParticipantsStage.WithLabelValues(stage).Set(float64(n))
	}
}

func (m *Metrics) SheetsSynced(at time.Time) {
	m.SheetsLastSyncUnix.Set(float64(at.Unix()))
}
