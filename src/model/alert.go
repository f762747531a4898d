package model

import "time"

const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

const (
	AlertKindMarginWarning  = "margin_warning"
	AlertKindMarginCritical = "margin_critical"
	AlertKindLiquidation    = "liquidation"
	AlertKindStaleData      = "stale_data"
)

// Alert is a structured notification emitted by the margin monitor. Every
// margin-triggered liquidation is preceded by at least one persisted alert so
// no forced state change is silent.
type Alert struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Kind        string    `gorm:"size:50;index" json:"kind"`
	Severity    string    `gorm:"size:20;index" json:"severity"`
	Account     string    `gorm:"size:100;index" json:"account"`
	Exchange    string    `gorm:"size:50" json:"exchange"`
	Symbol      string    `gorm:"size:50" json:"symbol,omitempty"`
	HealthRatio float64   `json:"health_ratio"`
	Message     string    `gorm:"type:text" json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Alert) TableName() string {
	return "alerts"
}
