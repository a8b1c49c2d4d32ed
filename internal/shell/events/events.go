// Package events publishes region lifecycle events for audit and downstream
// tooling.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Event Types
// =============================================================================

// Event records one lifecycle change of a region.
type Event struct {
	RegionName string              `json:"region_name"`
	RegionID   string              `json:"region_id"`
	From       domain.RegionStatus `json:"from"`
	To         domain.RegionStatus `json:"to"`
	Message    string              `json:"message,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Publisher receives lifecycle events. Publish must not block provisioning;
// implementations that do I/O should buffer or drop.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// =============================================================================
// Audit Logger
// =============================================================================

// AuditLogger publishes events to structured logs.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a log-backed publisher.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

func (a *AuditLogger) Publish(ctx context.Context, event Event) {
	attrs := []any{
		"region", event.RegionName,
		"region_id", event.RegionID,
		"from", string(event.From),
		"to", string(event.To),
	}
	if event.Message != "" {
		attrs = append(attrs, "message", event.Message)
	}
	a.logger.InfoContext(ctx, "region status changed", attrs...)
}

// =============================================================================
// Noop Publisher
// =============================================================================

// Noop discards events. Useful in tests.
type Noop struct{}

func (Noop) Publish(context.Context, Event) {}
