// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for identity-change metrics and logs.
const (
	OutcomeAuthenticated        = "authenticated"
	OutcomeRegistered           = "registered"
	OutcomeRenamed              = "renamed"
	OutcomeInvalidName          = "invalid_name"
	OutcomeGuestName            = "guest_name"
	OutcomeNameRegistered       = "name_registered"
	OutcomeCredentialMismatch   = "credential_mismatch"
	OutcomeRegistrationConflict = "registration_conflict"
	OutcomeRegisterFailed       = "register_failed"
	OutcomeUnknownRequest       = "unknown_request"
)

// Metrics records identity-change outcomes.
type Metrics struct {
	Changes           *prometheus.CounterVec
	RegisteredRecords prometheus.Gauge
}

// NewMetrics creates the identity metrics and registers them with reg.
// Panics if registration fails (following prometheus convention).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Changes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatd_identity_changes_total",
				Help: "Total number of identity-change requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RegisteredRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatd_auth_records",
				Help: "Number of registered names in the auth index",
			},
		),
	}

	reg.MustRegister(m.Changes)
	reg.MustRegister(m.RegisteredRecords)
	return m
}

func (m *Metrics) record(kind RequestKind, outcome string) {
	if m == nil {
		return
	}
	m.Changes.WithLabelValues(kind.String(), outcome).Inc()
	if outcome == OutcomeRegistered {
		m.RegisteredRecords.Inc()
	}
}

// SetRegisteredRecords sets the record gauge, e.g. after the index is loaded
// from storage.
func (m *Metrics) SetRegisteredRecords(n int) {
	if m == nil {
		return
	}
	m.RegisteredRecords.Set(float64(n))
}
