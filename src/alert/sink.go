package alert

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"tradegateway/src/model"
	"tradegateway/src/repository"
)

// Sink receives structured alerts from the margin monitor. Emission must
// never fail the caller's evaluation tick; sinks log their own errors.
type Sink interface {
	Emit(ctx context.Context, a model.Alert)
}

// LogSink writes alerts to the structured log.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Emit(_ context.Context, a model.Alert) {
	entry := logger.WithFields(map[string]interface{}{
		"kind":         a.Kind,
		"severity":     a.Severity,
		"account":      a.Account,
		"exchange":     a.Exchange,
		"symbol":       a.Symbol,
		"health_ratio": a.HealthRatio,
	})

	switch a.Severity {
	case model.AlertSeverityCritical:
		entry.Error(a.Message)
	case model.AlertSeverityWarning:
		entry.Warn(a.Message)
	default:
		entry.Info(a.Message)
	}
}

// DBSink persists alerts through the margin repository so nothing the
// monitor does is silent.
type DBSink struct {
	margins *repository.MarginRepository
}

func NewDBSink(margins *repository.MarginRepository) *DBSink {
	return &DBSink{margins: margins}
}

func (s *DBSink) Emit(ctx context.Context, a model.Alert) {
	if err := s.margins.InsertAlert(ctx, &a); err != nil {
		logger.WithError(err).Error("Failed to persist alert")
	}
}

// MultiSink fans one alert out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, a model.Alert) {
	for _, s := range m {
		s.Emit(ctx, a)
	}
}
