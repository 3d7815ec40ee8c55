package event

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadBegan:
		h.logger.Info("download started",
			zap.String("file_name", e.FileName),
			zap.String("file_path", e.FilePath),
			zap.Int64("total_size", e.TotalSize),
			zap.Bool("resumed", e.IsResumed),
			zap.Int64("downloaded", e.DownloadedSize),
		)
	case Ended:
		h.logger.Info("download finished",
			zap.String("file_path", e.FilePath),
			zap.Int64("total_size", e.TotalSize),
			zap.Int64("downloaded", e.DownloadedSize),
			zap.Int64("on_disk_size", e.OnDiskSize),
			zap.Bool("incomplete", e.Incomplete),
		)
	case Skipped:
		h.logger.Info("download skipped",
			zap.String("file_path", e.FilePath),
			zap.Int64("total_size", e.TotalSize),
			zap.Int64("on_disk_size", e.DownloadedSize),
		)
	case Retried:
		h.logger.Warn("retrying download",
			zap.Int("attempt", e.Attempt),
			zap.Int("max_retries", e.MaxRetries),
			zap.Duration("delay", e.Delay),
			zap.Error(e.Err),
		)
	case Failed:
		h.logger.Error("download failed",
			zap.Error(e.Err),
			zap.Int("status", e.StatusCode),
			zap.String("body", e.Body),
		)
	case Warning:
		h.logger.Warn("download warning", zap.Error(e.Err))
	case TimedOut:
		h.logger.Warn("download timed out", zap.Duration("after", e.After))
	case Renamed:
		h.logger.Info("destination renamed",
			zap.String("prev_path", e.PrevPath),
			zap.String("path", e.Path),
		)
	case Redirected:
		h.logger.Debug("redirected",
			zap.String("from", e.From),
			zap.String("to", e.To),
			zap.Int("status", e.StatusCode),
		)
	case StateChanged:
		h.logger.Debug("state changed", zap.String("state", e.State.String()))
	case Resumed:
		h.logger.Info("download resumed", zap.Bool("ranged", e.Ranged))
	case Progress:
		// Per-chunk progress is too chatty to log
	default:
		h.logger.Debug("download event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{NameAll}
}

// MetricsHandler collects metrics from events
type MetricsHandler struct {
	finished        atomic.Int64
	failed          atomic.Int64
	skipped         atomic.Int64
	retries         atomic.Int64
	warnings        atomic.Int64
	bytesDownloaded atomic.Int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case Ended:
		h.finished.Add(1)
		h.bytesDownloaded.Add(e.DownloadedSize)
	case Failed:
		h.failed.Add(1)
	case Skipped:
		h.skipped.Add(1)
	case Retried:
		h.retries.Add(1)
	case Warning:
		h.warnings.Add(1)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameEnd,
		NameError,
		NameSkip,
		NameRetry,
		NameWarning,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	return map[string]int64{
		"downloads_finished": h.finished.Load(),
		"downloads_failed":   h.failed.Load(),
		"downloads_skipped":  h.skipped.Load(),
		"retries":            h.retries.Load(),
		"warnings":           h.warnings.Load(),
		"bytes_downloaded":   h.bytesDownloaded.Load(),
	}
}
