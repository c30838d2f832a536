package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef maps a counter ID to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// FamilyMember is one labelled series of a CounterFamily.
type FamilyMember struct {
	ID    goSession.MetricID
	Value string
}

// CounterFamily groups counters that share a name and differ by one label.
type CounterFamily struct {
	Name    string
	Help    string
	Label   string
	Members []FamilyMember
}

// HistogramDef maps a latency histogram ID to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists the unlabelled counters in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLogin, Name: "gosession_login_total", Help: "Completed logins."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Completed logouts."},
	{ID: goSession.MetricLogoutInvalidateFailure, Name: "gosession_logout_invalidate_failure_total", Help: "Server-side invalidations that failed during logout."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Sessions cleared because the token expired."},
	{ID: goSession.MetricStorageRecovered, Name: "gosession_storage_recovered_total", Help: "Corrupt persisted values discarded."},
	{ID: goSession.MetricStorageWriteFailure, Name: "gosession_storage_write_failure_total", Help: "Failed persistent store writes."},
}

// CounterFamilies lists the labelled counters. Member order is the
// rendering order.
var CounterFamilies = []CounterFamily{
	{
		Name:  "gosession_branch_switch_total",
		Help:  "Branch switches by result.",
		Label: "result",
		Members: []FamilyMember{
			{ID: goSession.MetricBranchSwitchSuccess, Value: "success"},
			{ID: goSession.MetricBranchSwitchFailure, Value: "failure"},
			{ID: goSession.MetricBranchSwitchRejected, Value: "rejected"},
		},
	},
	{
		Name:  "gosession_academic_year_switch_total",
		Help:  "Academic-year switches by result.",
		Label: "result",
		Members: []FamilyMember{
			{ID: goSession.MetricAcademicYearSwitchSuccess, Value: "success"},
			{ID: goSession.MetricAcademicYearSwitchRejected, Value: "rejected"},
		},
	},
	{
		Name:  "gosession_refresh_total",
		Help:  "Token refreshes by result. Stale results arrived after a login or logout.",
		Label: "result",
		Members: []FamilyMember{
			{ID: goSession.MetricRefreshSuccess, Value: "success"},
			{ID: goSession.MetricRefreshFailure, Value: "failure"},
			{ID: goSession.MetricRefreshRejected, Value: "rejected"},
			{ID: goSession.MetricRefreshStale, Value: "stale"},
		},
	},
	{
		Name:  "gosession_rehydrate_total",
		Help:  "Startup rehydrations by outcome.",
		Label: "outcome",
		Members: []FamilyMember{
			{ID: goSession.MetricRehydrateAuthenticated, Value: "authenticated"},
			{ID: goSession.MetricRehydrateLoggedOut, Value: "logged_out"},
			{ID: goSession.MetricRehydrateExpired, Value: "expired"},
			{ID: goSession.MetricRehydrateProfilePending, Value: "profile_pending"},
		},
	},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricBranchConfirmLatency, Name: "gosession_branch_confirm_latency_seconds", Help: "Branch confirmation round-trip latency."},
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Token refresh round-trip latency."},
}

// Counters read from the Manager outside its MetricsSnapshot.
const (
	AuditDroppedName       = "gosession_audit_dropped_total"
	AuditDroppedHelp       = "Audit events dropped by the dispatcher."
	SnapshotsCoalescedName = "gosession_snapshots_coalesced_total"
	SnapshotsCoalescedHelp = "State snapshots skipped by slow subscribers."
)

// HistogramBounds are the upper bounds, in seconds, of the histogram buckets.
// They match the bucket edges of goSession latency histograms.
var HistogramBounds = []string{"0.025", "0.05", "0.1", "0.25", "0.5", "1", "2.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed-size bucket array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
