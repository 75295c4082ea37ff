package runtime

import (
	"github.com/drblury/flowguard/internal/runtime/notify"
	"github.com/drblury/flowguard/internal/runtime/slowmsg"
	"github.com/drblury/flowguard/internal/runtime/statistics"
	"github.com/drblury/flowguard/internal/runtime/throttle"
)

// The constructors below bind interceptors to the service's shared time slice
// registry, logger, metrics and notifier. Attach the result to a workflow with
// RegisterWorkflow; configuration errors surface when Start runs.

func (s *Service) NewThrottle(cfg throttle.Config) *throttle.Throttle {
	return throttle.New(cfg, s.timeSlices, s.Logger, s.metrics)
}

func (s *Service) NewMessageMetrics(cfg statistics.Config) *statistics.MessageMetrics {
	return statistics.NewMessageMetrics(cfg, s.metrics)
}

// NewMessageMetricsByMetadata fails immediately when the pattern does not compile.
func (s *Service) NewMessageMetricsByMetadata(cfg statistics.FilterConfig) (*statistics.MessageMetrics, error) {
	return statistics.NewMessageMetricsByMetadata(cfg, s.metrics)
}

func (s *Service) NewMetadataCount(cfg statistics.MetadataConfig) *statistics.MetadataCount {
	return statistics.NewMetadataCount(cfg)
}

func (s *Service) NewMetadataTotals(cfg statistics.TotalsConfig) *statistics.MetadataTotals {
	return statistics.NewMetadataTotals(cfg, s.Logger)
}

func (s *Service) NewThresholdNotifier(cfg notify.ThresholdConfig) *notify.ThresholdNotifier {
	return notify.NewThresholdNotifier(cfg, s.notifier, s.Logger, s.metrics)
}

func (s *Service) NewCountNotifier(cfg notify.CountConfig) *notify.CountNotifier {
	return notify.NewCountNotifier(cfg, s.notifier, s.Logger, s.metrics)
}

func (s *Service) NewSlowMessageTracker(cfg slowmsg.Config) *slowmsg.Tracker {
	return slowmsg.New(cfg, s.notifier, s.Logger, s.metrics)
}
