package models

import (
	"time"
)

// Project is defined by its organism. It is created once at provisioning time
// and never mutated by the sync pipeline.
type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Organism  string    `gorm:"uniqueIndex;not null" json:"organism"`
	Alias     string    `gorm:"not null" json:"alias"`
	CreatedBy string    `json:"created_by"`
	BaseDir   string    `json:"base_dir"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
