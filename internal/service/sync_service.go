package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/user"
	"time"

	"virosync/internal/clients"
	"virosync/internal/genbank"
	"virosync/internal/models"
	"virosync/internal/repository"
	"virosync/internal/storage"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrSyncLocked means another sync run currently holds the lock.
var ErrSyncLocked = errors.New("service: sync already in progress")

// Stage names the pipeline step at which one identifier passed or failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
	StageCache   Stage = "cache"
	StagePersist Stage = "persist"
)

// SyncReport is the batch-level outcome of one run. Individual record
// failures never fail the run as a whole.
type SyncReport struct {
	Organism   string        `json:"organism"`
	Total      int           `json:"total"`
	Persisted  int           `json:"persisted"`
	Skipped    int           `json:"skipped"` // already synchronized versions
	Failed     map[Stage]int `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (r *SyncReport) failedTotal() int {
	n := 0
	for _, c := range r.Failed {
		n += c
	}
	return n
}

type SyncService interface {
	SyncNCBI(ctx context.Context) (*SyncReport, error)
	FetchRecord(ctx context.Context, id string) error
}

// SyncConfig is the read-only input of one pipeline instance.
type SyncConfig struct {
	DB          string // Entrez database, e.g. "nuccore"
	Organism    string
	RetMax      int           // cap on discovered ids; <= 0 means all
	MinInterval time.Duration // minimum spacing between remote requests
}

type syncService struct {
	client    clients.EntrezClient
	store     *storage.FlatFileStore
	genbanks  repository.GenBankFileRepository
	isolates  repository.IsolateRepository
	cacheRepo repository.CacheRepository
	limiter   *rate.Limiter
	config    SyncConfig
	username  string
}

func NewSyncService(
	client clients.EntrezClient,
	store *storage.FlatFileStore,
	genbanks repository.GenBankFileRepository,
	isolates repository.IsolateRepository,
	cacheRepo repository.CacheRepository,
	config SyncConfig,
) SyncService {
	if config.MinInterval <= 0 {
		config.MinInterval = time.Second / 3
	}
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return &syncService{
		client:    client,
		store:     store,
		genbanks:  genbanks,
		isolates:  isolates,
		cacheRepo: cacheRepo,
		// One shared budget for every remote request this service makes,
		// regardless of request outcome.
		limiter:  rate.NewLimiter(rate.Every(config.MinInterval), 1),
		config:   config,
		username: username,
	}
}

// SyncNCBI discovers all record ids matching the organism query and runs
// each through fetch -> parse -> cache -> persist. One identifier's failure
// is logged and counted, never fatal to the batch.
func (s *syncService) SyncNCBI(ctx context.Context) (*SyncReport, error) {
	locked, err := s.cacheRepo.SetNX(ctx, "sync:lock", "1", 30*time.Minute)
	if err != nil {
		log.Printf("Sync lock unavailable, continuing without it: %v", err)
	} else if !locked {
		return nil, ErrSyncLocked
	}
	defer s.cacheRepo.Delete(ctx, "sync:lock")

	log.Printf("Syncing %q from NCBI %s...", s.config.Organism, s.config.DB)

	report := &SyncReport{
		Organism:  s.config.Organism,
		Failed:    make(map[Stage]int),
		StartedAt: time.Now().UTC(),
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ids, err := s.client.Search(ctx, clients.SearchParams{
		DB:     s.config.DB,
		Term:   searchTerm(s.config.Organism),
		RetMax: s.config.RetMax,
	})
	if err != nil {
		return nil, fmt.Errorf("discover record ids: %w", err)
	}

	log.Printf("Found %d records matching %q", len(ids), s.config.Organism)
	report.Total = len(ids)

	for _, id := range ids {
		// A run may be stopped between identifiers with no partial state.
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, err
		}
		if err := s.limiter.Wait(ctx); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, err
		}

		skipped, stage, err := s.syncOne(ctx, id)
		switch {
		case err != nil:
			report.Failed[stage]++
			log.Warnf("Record %s failed at %s: %v", id, stage, err)
		case skipped:
			report.Skipped++
		default:
			report.Persisted++
		}
	}

	report.FinishedAt = time.Now().UTC()
	log.Printf("Sync completed: %d persisted, %d skipped, %d failed of %d",
		report.Persisted, report.Skipped, report.failedTotal(), report.Total)
	return report, nil
}

// FetchRecord ingests a single identifier outside a full run, under the same
// rate budget and pipeline stages.
func (s *syncService) FetchRecord(ctx context.Context, id string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, stage, err := s.syncOne(ctx, id)
	if err != nil {
		return fmt.Errorf("record %s failed at %s: %w", id, stage, err)
	}
	return nil
}

// syncOne drives one identifier through the pipeline stages. It reports
// skipped=true when the version was already cached and persisted.
func (s *syncService) syncOne(ctx context.Context, id string) (skipped bool, stage Stage, err error) {
	text, err := s.client.Fetch(ctx, clients.FetchParams{DB: s.config.DB, ID: id, RetType: "gb"})
	if err != nil {
		return false, StageFetch, err
	}

	rec, err := genbank.Parse(text)
	if err != nil {
		return false, StageParse, err
	}
	source, err := genbank.SourceData(rec)
	if err != nil {
		return false, StageParse, err
	}

	// Dedup short-circuit: a cached version is never re-written.
	var path string
	cached := s.store.Has(rec.Version)
	if cached {
		if path, err = s.store.PathFor(rec.Version); err != nil {
			return false, StageCache, err
		}
	} else {
		if path, err = s.store.Put(rec.Version, text); err != nil {
			return false, StageCache, err
		}
	}

	existing, err := s.genbanks.FindByVersion(ctx, rec.Version)
	if err != nil {
		return false, StagePersist, err
	}
	if existing != nil && cached {
		// Already synchronized on both sides, nothing to update.
		return true, StagePersist, nil
	}
	if existing == nil {
		if err := s.genbanks.Create(ctx, s.buildGenBankFile(rec, path, source)); err != nil {
			return false, StagePersist, err
		}
	}
	if err := s.isolates.Upsert(ctx, buildIsolate(rec, source)); err != nil {
		return false, StagePersist, err
	}
	return false, StagePersist, nil
}

func (s *syncService) buildGenBankFile(rec *genbank.Record, path string, source map[string]string) *models.GenBankFile {
	raw, _ := json.Marshal(source)
	file := &models.GenBankFile{
		Accession:      rec.Accession,
		Version:        rec.Version,
		Filepath:       path,
		DateDownloaded: time.Now().UTC(),
		DownloadedBy:   s.username,
		NumFeatures:    len(rec.Features),
		Length:         rec.Length,
		Source:         raw,
	}
	for _, f := range rec.Features {
		file.Features = append(file.Features, models.Feature{
			Key:   f.Key,
			Start: f.Start,
			Stop:  f.Stop,
		})
	}
	return file
}

func buildIsolate(rec *genbank.Record, source map[string]string) *models.Isolate {
	isolate := &models.Isolate{
		Accession:     rec.Accession,
		UID:           uuid.NewString(),
		Organism:      rec.Organism,
		DateCollected: qualifier(source, "collection_date"),
		Country:       qualifier(source, "country"),
		Host:          qualifier(source, "host"),
	}
	if rec.DateReleased != "" {
		isolate.DateReleased = &rec.DateReleased
	}
	return isolate
}

func qualifier(source map[string]string, key string) *string {
	if v, ok := source[key]; ok && v != "" {
		return &v
	}
	return nil
}

// searchTerm builds the nucleotide query for an organism, matching the
// "complete genome" records only.
func searchTerm(organism string) string {
	return fmt.Sprintf("complete genome AND %s[organism]", organism)
}
