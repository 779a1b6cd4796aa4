package syncer

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"

	"github.com/iudanet/docsync/internal/models"
)

var (
	passesTotal        = metrics.NewCounter("docsync_sync_passes_total")
	passesSkippedTotal = metrics.NewCounter("docsync_sync_passes_skipped_total")
	conflictsTotal     = metrics.NewCounter("docsync_conflicts_total")
	recoveredTotal     = metrics.NewCounter("docsync_recovered_documents_total")
	passDuration       = metrics.NewSummary("docsync_sync_pass_duration_seconds")
)

func remoteWritesCounter(op models.OperationType) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`docsync_remote_writes_total{op=%q}`, op))
}

func syncErrorsCounter(kind ErrorKind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`docsync_sync_errors_total{kind=%q}`, kind))
}
