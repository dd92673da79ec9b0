package metrics

import (
	"net/http"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
)

// Query kinds reported to QueryObserved.
const (
	QueryWindow  = "window"
	QueryAll     = "all"
	QueryLatest  = "latest"
	QueryAlarm   = "alarm"
	QuerySummary = "summary"
)

// Recorder receives operational events from the ingest and query paths.
type Recorder interface {
	SampleIngested()
	IngestRejected(code errors.ErrorCode)
	SamplesEvicted(n int)
	BufferSize(n int)
	QueryObserved(kind string, d time.Duration)
	AlarmState(state string)

	// Handler serves the collected metrics in the Prometheus text format.
	Handler() http.Handler
}
