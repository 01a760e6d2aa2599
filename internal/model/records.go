package model

import (
	"time"
)

// Append-only persistence rows. Written best-effort off the hot path;
// a failed insert is logged and counted, never retried inline.

type EventSnapshotRecord struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	EventID    string    `gorm:"index"`
	MarketType string    `gorm:"index"`
	Status     string
	HomeScore  int
	AwayScore  int
	Value      float64
	Target     float64
	ModelProb  float64
	CreatedAt  time.Time `gorm:"index"`
}

func (EventSnapshotRecord) TableName() string { return "event_snapshots" }

type SignalRecord struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	EventID    string    `gorm:"index"`
	Entity     string
	Direction  string
	Detector   string
	Edge       float64
	ModelProb  float64
	MarketProb float64
	Venue      string
	Price      string
	CreatedAt  time.Time `gorm:"index"`
}

func (SignalRecord) TableName() string { return "signals" }

type RejectionRecord struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	EventID   string    `gorm:"index"`
	Entity    string
	Direction string
	Reasons   string
	CreatedAt time.Time `gorm:"index"`
}

func (RejectionRecord) TableName() string { return "rejections" }

type OrderRecord struct {
	ID             string    `gorm:"primaryKey;type:uuid"`
	IdempotencyKey string    `gorm:"index"`
	EventID        string    `gorm:"index"`
	Entity         string
	Direction      string
	Venue          string
	Size           string
	Price          string
	Status         string
	VenueOrder     string
	FilledSize     string
	CreatedAt      time.Time `gorm:"index"`
}

func (OrderRecord) TableName() string { return "orders" }
