package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"virosync/internal/repository"
	"virosync/internal/utils"

	log "github.com/sirupsen/logrus"
)

// ReportService exports isolate metadata for downstream analysis.
type ReportService interface {
	ExportIsolates(ctx context.Context) (string, error)
}

type reportService struct {
	isolates  repository.IsolateRepository
	outputDir string
}

func NewReportService(isolates repository.IsolateRepository, outputDir string) ReportService {
	if outputDir == "" {
		outputDir = "./data/reports"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Printf("Failed to create report directory: %v", err)
	}
	return &reportService{
		isolates:  isolates,
		outputDir: outputDir,
	}
}

// ExportIsolates writes all isolates to a timestamped xlsx workbook and
// returns its path.
func (s *reportService) ExportIsolates(ctx context.Context) (string, error) {
	isolates, err := s.isolates.GetAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load isolates: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := fmt.Sprintf("isolates_%s.xlsx", timestamp)
	path := filepath.Join(s.outputDir, filename)

	if err := utils.CreateIsolateWorkbook(path, isolates); err != nil {
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}

	log.Printf("Isolate report written: %s (%d records)", filename, len(isolates))
	return path, nil
}
