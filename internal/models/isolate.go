package models

import (
	"time"
)

// Isolate is defined by its NCBI accession, which is stable across record
// versions. Mutable specimen fields are refreshed when a newer version of the
// same accession is synchronized; the primary key never changes.
type Isolate struct {
	Accession     string    `gorm:"primaryKey" json:"accession"`
	UID           string    `gorm:"uniqueIndex" json:"uid"`
	Organism      string    `gorm:"not null" json:"organism"`
	DateReleased  *string   `json:"date_released"`
	DateCollected *string   `json:"date_collected"`
	Country       *string   `json:"country"`
	Host          *string   `json:"host"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
