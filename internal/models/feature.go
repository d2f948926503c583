package models

// Feature is one annotation of a GenBank file, owned exclusively by it.
// Coordinates are 1-based inclusive per GenBank convention.
type Feature struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	GenBankFileID uint   `gorm:"not null;index" json:"genbank_file_id"`
	Key           string `gorm:"not null" json:"key"`
	Start         int    `json:"start"`
	Stop          int    `json:"stop"`
}

// Length is derived from the interval and always equals Stop - Start.
func (f Feature) Length() int {
	return f.Stop - f.Start
}
