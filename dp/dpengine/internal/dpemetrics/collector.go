// Package dpemetrics exposes engine activity as Prometheus metrics.
package dpemetrics

import (
	"errors"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records engine activity.
// A nil *Collector is valid and records nothing.
type Collector struct {
	accepted *prometheus.CounterVec
	rejected *prometheus.CounterVec

	revealed prometheus.Counter

	height      prometheus.Gauge
	roundNumber prometheus.Gauge
	termNumber  prometheus.Gauge
	libHeight   prometheus.Gauge

	missedSlots *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gdpos",
			Name:      "payloads_accepted_total",
			Help:      "Consensus payloads applied, by behavior",
		}, []string{"behavior"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gdpos",
			Name:      "payloads_rejected_total",
			Help:      "Consensus payloads rejected, by behavior and validation stage",
		}, []string{"behavior", "stage"}),
		revealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdpos",
			Name:      "in_values_reconstructed_total",
			Help:      "Withheld pre-images recovered from secret shares",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gdpos",
			Name:      "chain_height",
			Help:      "Height of the last applied block",
		}),
		roundNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gdpos",
			Name:      "round_number",
			Help:      "Current round number",
		}),
		termNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gdpos",
			Name:      "term_number",
			Help:      "Current term number",
		}),
		libHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gdpos",
			Name:      "irreversible_height",
			Help:      "Confirmed last irreversible block height",
		}),
		missedSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gdpos",
			Name:      "missed_time_slots",
			Help:      "Cumulative missed time slots, by validator",
		}, []string{"validator"}),
	}

	var errs []error
	for _, m := range []prometheus.Collector{
		c.accepted, c.rejected, c.revealed,
		c.height, c.roundNumber, c.termNumber, c.libHeight,
		c.missedSlots,
	} {
		if err := reg.Register(m); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) Accepted(b dpconsensus.Behavior) {
	if c == nil {
		return
	}
	c.accepted.WithLabelValues(b.String()).Inc()
}

func (c *Collector) Rejected(b dpconsensus.Behavior, stage string) {
	if c == nil {
		return
	}
	c.rejected.WithLabelValues(b.String(), stage).Inc()
}

func (c *Collector) Reconstructed(n int) {
	if c == nil {
		return
	}
	c.revealed.Add(float64(n))
}

// SetState updates the gauges from the newly committed round and state.
func (c *Collector) SetState(r dpconsensus.Round, s dpconsensus.ChainState) {
	if c == nil {
		return
	}
	c.height.Set(float64(s.Height))
	c.roundNumber.Set(float64(r.RoundNumber))
	c.termNumber.Set(float64(r.TermNumber))
	c.libHeight.Set(float64(r.ConfirmedIrreversibleBlockHeight))

	// Validators leave at term changes.
	c.missedSlots.Reset()
	for k, m := range r.Miners {
		c.missedSlots.WithLabelValues(k).Set(float64(m.MissedTimeSlots))
	}
}
