package models

import (
	"time"

	"gorm.io/datatypes"
)

// GenBankFile is one downloaded flat file. Version is the dedup key: a
// version already present is never re-downloaded or re-inserted.
type GenBankFile struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Accession      string         `gorm:"not null;index" json:"accession"`
	Version        string         `gorm:"not null;uniqueIndex" json:"version"`
	Filepath       string         `gorm:"not null" json:"filepath"`
	DateDownloaded time.Time      `gorm:"not null" json:"date_downloaded"`
	DownloadedBy   string         `json:"downloaded_by"`
	NumFeatures    int            `json:"num_features"`
	Length         int            `json:"length"`
	Source         datatypes.JSON `gorm:"type:jsonb" json:"source"`
	Features       []Feature      `gorm:"constraint:OnDelete:CASCADE" json:"features,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
