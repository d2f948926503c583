package worker

import (
	"context"
	"errors"
	"time"

	"virosync/internal/service"

	log "github.com/sirupsen/logrus"
)

// SyncWorker runs the NCBI synchronization pipeline on a fixed interval.
type SyncWorker struct {
	service  service.SyncService
	interval time.Duration
	stopChan chan struct{}
	running  bool
}

func NewSyncWorker(service service.SyncService, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (w *SyncWorker) Start() {
	if w.running {
		return
	}

	w.running = true
	log.Printf("Sync Worker started with interval %v", w.interval)

	// First sync right away, then on the ticker.
	w.sync()
	go w.run()
}

func (w *SyncWorker) Stop() {
	if !w.running {
		return
	}

	close(w.stopChan)
	w.running = false
	log.Println("Sync Worker stopped")
}

func (w *SyncWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sync()
		case <-w.stopChan:
			return
		}
	}
}

func (w *SyncWorker) sync() {
	// A full run over a large id list takes hours under the remote rate
	// limit; the timeout only bounds a runaway batch.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	log.Println("Sync Worker: starting NCBI sync...")

	report, err := w.service.SyncNCBI(ctx)
	if errors.Is(err, service.ErrSyncLocked) {
		log.Println("Sync Worker: previous run still in progress, skipping")
		return
	}
	if err != nil {
		log.Printf("Sync Worker error: %v", err)
		return
	}

	log.Printf("Sync Worker: completed, %d persisted, %d skipped of %d",
		report.Persisted, report.Skipped, report.Total)
}
