package notify

import (
	"strconv"

	"github.com/drblury/flowguard/internal/runtime/metadata"
	"github.com/drblury/flowguard/internal/runtime/statistics"
)

// Attribute keys carried by notifications.
const (
	AttrTotalMessageCount = "total_message_count"
	AttrTotalErrorCount   = "total_error_count"
	AttrTotalByteSize     = "total_byte_size"
	AttrWindowStart       = "window_start"
	AttrWindowEnd         = "window_end"
	AttrThresholdState    = "threshold_state"

	AttrMessageID  = "message_id"
	AttrStart      = "start"
	AttrEnd        = "end"
	AttrDurationMs = "duration_ms"
	AttrSuccess    = "success"
)

// Threshold states reported by the count notifier.
const (
	StateAbove = "above"
	StateBelow = "below"
)

// WindowAttributes describes a statistics window. Times are unix milliseconds.
func WindowAttributes(s *statistics.MessageStatistic) metadata.Metadata {
	if s == nil {
		return metadata.Metadata{}
	}
	return metadata.Metadata{
		AttrTotalMessageCount: strconv.FormatInt(s.TotalMessageCount, 10),
		AttrTotalErrorCount:   strconv.FormatInt(s.TotalMessageErrorCount, 10),
		AttrTotalByteSize:     strconv.FormatInt(s.TotalMessageSize, 10),
		AttrWindowStart:       strconv.FormatInt(s.Start.UnixMilli(), 10),
		AttrWindowEnd:         strconv.FormatInt(s.End.UnixMilli(), 10),
	}
}
