package models

import "time"

// Users (one row per identity-provider uid)
type User struct {
	ID                uint    `gorm:"primaryKey;autoIncrement"`
	Identity          string  `gorm:"type:varchar(128);uniqueIndex;not null"`
	DisplayName       string  `gorm:"type:varchar(255)"`
	Email             string  `gorm:"type:varchar(255)"`
	PromptTotal       int64   `gorm:"not null;default:0"`
	OutputTokenTotal  int64   `gorm:"not null;default:0"`
	CO2TotalGrams     float64 `gorm:"not null;default:0"`
	DailyLimitPrompts int64   `gorm:"not null;default:0"`
	DailyLimitCO2     float64 `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (User) TableName() string {
	return "users"
}

// Lifetime per-model counters, one row per (identity, model)
type ModelTotal struct {
	ID               uint    `gorm:"primaryKey;autoIncrement"`
	Identity         string  `gorm:"type:varchar(128);uniqueIndex:idx_model_total;not null"`
	Model            string  `gorm:"type:varchar(32);uniqueIndex:idx_model_total;not null"`
	PromptCount      int64   `gorm:"not null;default:0"`
	OutputTokenCount int64   `gorm:"not null;default:0"`
	CO2Grams         float64 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ModelTotal) TableName() string {
	return "model_totals"
}

// Daily Usage Aggregation, date keyed YYYY-MM-DD in UTC
type DailyUsage struct {
	ID               uint    `gorm:"primaryKey;autoIncrement"`
	Identity         string  `gorm:"type:varchar(128);uniqueIndex:idx_identity_date;not null"`
	Date             string  `gorm:"type:varchar(10);uniqueIndex:idx_identity_date;not null"`
	PromptCount      int64   `gorm:"not null;default:0"`
	OutputTokenCount int64   `gorm:"not null;default:0"`
	CO2Grams         float64 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DailyUsage) TableName() string {
	return "daily_usage"
}

// Per-model slice of a single day's usage
type DailyModelUsage struct {
	ID               uint    `gorm:"primaryKey;autoIncrement"`
	Identity         string  `gorm:"type:varchar(128);uniqueIndex:idx_identity_date_model;not null"`
	Date             string  `gorm:"type:varchar(10);uniqueIndex:idx_identity_date_model;not null"`
	Model            string  `gorm:"type:varchar(32);uniqueIndex:idx_identity_date_model;not null"`
	PromptCount      int64   `gorm:"not null;default:0"`
	OutputTokenCount int64   `gorm:"not null;default:0"`
	CO2Grams         float64 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DailyModelUsage) TableName() string {
	return "daily_model_usage"
}

// Idempotency ledger: an increment carrying an event ID already present
// here is skipped instead of re-applied.
type ProcessedEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Identity  string    `gorm:"type:varchar(128);uniqueIndex:idx_identity_event;not null"`
	EventID   string    `gorm:"type:varchar(64);uniqueIndex:idx_identity_event;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}
