// Package billing holds the per-minute charging rule shared by the backend
// settlement and the in-call balance estimate.
package billing

import (
	"fmt"
	"math"
)

// FreeTrialSeconds is the non-billable allowance of a free-trial session.
const FreeTrialSeconds = 300

// Snapshot is the advisory billing view of a running call.
type Snapshot struct {
	ElapsedSeconds   int64   `json:"elapsed_seconds"`
	BillableSeconds  int64   `json:"billable_seconds"`
	EstimatedBalance float64 `json:"estimated_balance"`
}

// InFreeWindow reports whether the call is still inside the free allowance.
func (s Snapshot) InFreeWindow(isFreeTrial bool) bool {
	return isFreeTrial && s.ElapsedSeconds <= FreeTrialSeconds
}

// BillableSeconds returns the part of elapsed that is charged.
func BillableSeconds(elapsedSeconds int64, isFreeTrial bool) int64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	if !isFreeTrial {
		return elapsedSeconds
	}
	if elapsedSeconds <= FreeTrialSeconds {
		return 0
	}
	return elapsedSeconds - FreeTrialSeconds
}

// Cost returns the charge for elapsed seconds at ratePerMinute.
func Cost(elapsedSeconds int64, isFreeTrial bool, ratePerMinute float64) float64 {
	if ratePerMinute <= 0 {
		return 0
	}
	return float64(BillableSeconds(elapsedSeconds, isFreeTrial)) / 60 * ratePerMinute
}

// Estimate computes the displayed balance for a running call. The result is
// floored at zero and is never authoritative.
func Estimate(elapsedSeconds int64, isFreeTrial bool, ratePerMinute, lastKnownBalance float64) Snapshot {
	billable := BillableSeconds(elapsedSeconds, isFreeTrial)
	balance := math.Max(0, lastKnownBalance-Cost(elapsedSeconds, isFreeTrial, ratePerMinute))

	return Snapshot{
		ElapsedSeconds:   max(elapsedSeconds, 0),
		BillableSeconds:  billable,
		EstimatedBalance: balance,
	}
}

// FormatDuration renders seconds as MM:SS.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
