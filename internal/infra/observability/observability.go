// Package observability holds the bot's Prometheus metrics, exposed on the
// HTTP API's /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Economy Metrics ────────────────────────────────────────────────────────

var CreditsEarned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "economy",
	Name:      "credits_earned_total",
	Help:      "Total Rupias credited by earning source.",
}, []string{"source"}) // message | voice | achievement | bonus | grant

var QuotaDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "economy",
	Name:      "quota_denials_total",
	Help:      "Total earn attempts denied by a filled daily quota.",
}, []string{"type"}) // message | voice

var SpamFlags = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "economy",
	Name:      "spam_flags_total",
	Help:      "Total messages skipped by the repeated-content filter.",
})

var AchievementsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "economy",
	Name:      "achievements_completed_total",
	Help:      "Total achievement completions by achievement id.",
}, []string{"achievement"})

// ─── Shop Metrics ───────────────────────────────────────────────────────────

var Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "shop",
	Name:      "purchases_total",
	Help:      "Total purchase attempts by item and outcome.",
}, []string{"item", "outcome"}) // outcome: applied | refunded

var RefundedRupias = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "shop",
	Name:      "refunded_rupias_total",
	Help:      "Total Rupias returned to buyers by failed or cancelled purchases.",
})

// ─── Scheduler Metrics ──────────────────────────────────────────────────────

var ScheduledReverts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "scheduler",
	Name:      "reverts_total",
	Help:      "Total scheduled effect reverts executed by kind.",
}, []string{"kind"})

var PendingReverts = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "rupia",
	Subsystem: "scheduler",
	Name:      "pending_reverts",
	Help:      "Scheduled effect reverts currently waiting to expire.",
})

// ─── Moderation Metrics ─────────────────────────────────────────────────────

var ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "moderation",
	Name:      "actions_total",
	Help:      "Total moderator actions by kind.",
}, []string{"action"}) // ban | kick | clear | mute

// ─── Command Metrics ────────────────────────────────────────────────────────

var CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rupia",
	Subsystem: "bot",
	Name:      "commands_total",
	Help:      "Total prefix commands dispatched by name.",
}, []string{"command"})
