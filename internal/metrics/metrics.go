// Package metrics defines and registers all custom Prometheus metrics for the
// classroom session daemon. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry through promauto when the
// package is first imported; /metrics serves them via echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "classroom"

// ── Provisioning ──────────────────────────────────────────────────────────────

// ProfilesProvisionedTotal counts EnsureProfile outcomes.
// Label:
//   - result: "created_admin", "created_student", "updated", "exists" (lost the insert race) or "error"
var ProfilesProvisionedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profiles_provisioned_total",
		Help:      "Total number of profile provisioning operations, by result.",
	},
	[]string{"result"},
)

// ProvisionSharedTotal counts callers whose EnsureProfile outcome came from a
// provisioning operation shared with other concurrent callers.
var ProvisionSharedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provision_shared_total",
		Help:      "Total number of provisioning calls whose outcome was shared with concurrent callers.",
	},
)

// ── Role resolution ───────────────────────────────────────────────────────────

// RoleLookupsTotal counts single bounded role reads.
// Label:
//   - result: "found", "not_found", "timeout" or "error"
var RoleLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_lookups_total",
		Help:      "Total number of bounded role lookups, by result.",
	},
	[]string{"result"},
)

// RoleLookupRetriesTotal counts retry attempts after a failed role read.
var RoleLookupRetriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_lookup_retries_total",
		Help:      "Total number of role lookup retries after a failure.",
	},
)

// ── Session ───────────────────────────────────────────────────────────────────

// AuthEventsTotal counts identity provider events seen by the reconciler.
// Labels:
//   - kind: event kind (e.g. "SIGNED_IN")
//   - action: "applied", "discarded" or "ignored"
var AuthEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_total",
		Help:      "Total number of auth events received, by kind and action taken.",
	},
	[]string{"kind", "action"},
)

// SessionResolveDuration measures one full bootstrap (identity, profile, role).
// Label:
//   - outcome: "signed_in", "anonymous" or "error"
var SessionResolveDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_resolve_duration_seconds",
		Help:      "Duration of session bootstrap from identity lookup to resolved role.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

// TokenRefreshesTotal counts access-token refresh attempts.
// Label:
//   - result: "ok", "rejected" or "error"
var TokenRefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of access-token refresh attempts, by result.",
	},
	[]string{"result"},
)

// EventQueueDepth tracks auth events waiting for the reconciler worker.
var EventQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "auth_event_queue_depth",
		Help:      "Current number of auth events pending in the dispatcher channel.",
	},
)
