package reconcile

import (
	"fmt"
	"time"

	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
)

// SyncResult summarises one reconciliation run. Errors holds at most the
// configured number of messages; ErrorCount is the true total.
type SyncResult struct {
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	MembersScanned     int       `json:"members_scanned"`
	CustomersLinked    int       `json:"customers_linked"`
	Processed          int       `json:"processed"`
	Created            int       `json:"created"`
	SkippedDuplicate   int       `json:"skipped_duplicate"`
	SkippedSelfService int       `json:"skipped_self_service"`
	SkippedNoMember    int       `json:"skipped_no_member"`
	SkippedFailed      int       `json:"skipped_failed"`
	ErrorCount         int       `json:"error_count"`
	Errors             []string  `json:"errors"`
	Interrupted        bool      `json:"interrupted"`
}

func (r *SyncResult) addError(limit int, format string, args ...any) {
	r.ErrorCount++
	if len(r.Errors) < limit {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}
}

func (r SyncResult) counts() metrics.ReconcileCounts {
	return metrics.ReconcileCounts{
		Processed:          r.Processed,
		Created:            r.Created,
		SkippedDuplicate:   r.SkippedDuplicate,
		SkippedSelfService: r.SkippedSelfService,
		SkippedNoMember:    r.SkippedNoMember,
		SkippedFailed:      r.SkippedFailed,
		Errors:             r.ErrorCount,
	}
}
