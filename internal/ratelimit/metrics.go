package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts limiter decisions. A nil *Metrics records nothing.
type Metrics struct {
	Checks          *prometheus.CounterVec
	Updates         *prometheus.CounterVec
	FailedLogins    prometheus.Counter
	DelayRejections prometheus.Counter
	SweptRecords    *prometheus.CounterVec
}

// NewMetrics registers the limiter collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_ratelimit_checks_total",
			Help: "Rate limit checks by endpoint class and decision",
		}, []string{"class", "decision"}),
		Updates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_ratelimit_updates_total",
			Help: "Rate limit bookkeeping updates by endpoint class and outcome",
		}, []string{"class", "outcome"}),
		FailedLogins: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_ratelimit_failed_logins_recorded_total",
			Help: "Failed logins recorded for progressive delay",
		}),
		DelayRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_ratelimit_login_delay_rejections_total",
			Help: "Login attempts rejected by the progressive delay",
		}),
		SweptRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_ratelimit_swept_records_total",
			Help: "Expired records removed by sweeps",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeCheck(class Class, limited bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if limited {
		decision = "limited"
	}
	m.Checks.WithLabelValues(string(class), decision).Inc()
}

func (m *Metrics) observeUpdate(class Class, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.Updates.WithLabelValues(string(class), outcome).Inc()
}

func (m *Metrics) observeFailedLogin() {
	if m == nil {
		return
	}
	m.FailedLogins.Inc()
}

func (m *Metrics) observeDelayRejection() {
	if m == nil {
		return
	}
	m.DelayRejections.Inc()
}

func (m *Metrics) observeSweep(result SweepResult) {
	if m == nil {
		return
	}
	m.SweptRecords.WithLabelValues("entry").Add(float64(result.Entries))
	m.SweptRecords.WithLabelValues("failed_login").Add(float64(result.FailedLogins))
}
