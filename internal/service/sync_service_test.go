package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"virosync/internal/clients"
	"virosync/internal/models"
	"virosync/internal/storage"
)

// fakeEntrez serves canned flat files keyed by identifier.
type fakeEntrez struct {
	mu       sync.Mutex
	records  map[string]string
	extraIDs []string // discovered but not fetchable
	fetches  int
}

func (f *fakeEntrez) Search(ctx context.Context, params clients.SearchParams) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	ids = append(ids, f.extraIDs...)
	return ids, nil
}

func (f *fakeEntrez) Fetch(ctx context.Context, params clients.FetchParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	text, ok := f.records[params.ID]
	if !ok {
		return "", fmt.Errorf("%w: id %s", clients.ErrNotFound, params.ID)
	}
	return text, nil
}

// memGenBankRepo is an in-memory GenBankFileRepository.
type memGenBankRepo struct {
	mu    sync.Mutex
	files []models.GenBankFile
}

func (m *memGenBankRepo) Create(ctx context.Context, file *models.GenBankFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.Version == file.Version {
			return errors.New("duplicate version")
		}
	}
	file.ID = uint(len(m.files) + 1)
	m.files = append(m.files, *file)
	return nil
}

func (m *memGenBankRepo) FindByVersion(ctx context.Context, version string) (*models.GenBankFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.files {
		if m.files[i].Version == version {
			f := m.files[i]
			return &f, nil
		}
	}
	return nil, nil
}

func (m *memGenBankRepo) GetByAccession(ctx context.Context, accession string) ([]models.GenBankFile, error) {
	return nil, nil
}

func (m *memGenBankRepo) GetPaginated(ctx context.Context, page, limit int) ([]models.GenBankFile, error) {
	return m.files, nil
}

func (m *memGenBankRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.files)), nil
}

func (m *memGenBankRepo) CountFeatures(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, f := range m.files {
		n += int64(len(f.Features))
	}
	return n, nil
}

// memIsolateRepo is an in-memory IsolateRepository keyed by accession.
type memIsolateRepo struct {
	mu       sync.Mutex
	isolates map[string]models.Isolate
}

func newMemIsolateRepo() *memIsolateRepo {
	return &memIsolateRepo{isolates: make(map[string]models.Isolate)}
}

func (m *memIsolateRepo) Upsert(ctx context.Context, isolate *models.Isolate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.isolates[isolate.Accession]; ok {
		existing.DateCollected = isolate.DateCollected
		existing.Country = isolate.Country
		existing.Host = isolate.Host
		if isolate.DateReleased != nil {
			existing.DateReleased = isolate.DateReleased
		}
		m.isolates[isolate.Accession] = existing
		return nil
	}
	m.isolates[isolate.Accession] = *isolate
	return nil
}

func (m *memIsolateRepo) GetByAccession(ctx context.Context, accession string) (*models.Isolate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if iso, ok := m.isolates[accession]; ok {
		return &iso, nil
	}
	return nil, errors.New("not found")
}

func (m *memIsolateRepo) GetPaginated(ctx context.Context, page, limit int) ([]models.Isolate, error) {
	return m.GetAll(ctx)
}

func (m *memIsolateRepo) GetAll(ctx context.Context) ([]models.Isolate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Isolate, 0, len(m.isolates))
	for _, iso := range m.isolates {
		out = append(out, iso)
	}
	return out, nil
}

func (m *memIsolateRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.isolates)), nil
}

// noopCache satisfies CacheRepository without a Redis server.
type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (noopCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (noopCache) Delete(ctx context.Context, key string) error { return nil }
func (noopCache) Exists(ctx context.Context, key string) (bool, error) { return false, nil }
func (noopCache) GetJSON(ctx context.Context, key string, dest interface{}) error { return nil }
func (noopCache) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (noopCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}

func flatFile(accession string, version int) string {
	return fmt.Sprintf(`LOCUS       %s               29903 bp ss-RNA     linear   VRL 15-MAR-2020
ACCESSION   %s
VERSION     %s.%d
  ORGANISM  Severe acute respiratory syndrome coronavirus 2
FEATURES             Location/Qualifiers
     source          1..29903
                     /host="Homo sapiens"
                     /country="USA"
                     /collection_date="2020-02-23"
     CDS             266..21555
//
`, accession, accession, accession, version)
}

type syncFixture struct {
	service  SyncService
	remote   *fakeEntrez
	store    *storage.FlatFileStore
	genbanks *memGenBankRepo
	isolates *memIsolateRepo
}

func newSyncFixture(t *testing.T, records map[string]string, interval time.Duration) *syncFixture {
	t.Helper()
	store, err := storage.NewFlatFileStore(t.TempDir(), "SARS-CoV-2")
	if err != nil {
		t.Fatal(err)
	}
	remote := &fakeEntrez{records: records}
	genbanks := &memGenBankRepo{}
	isolates := newMemIsolateRepo()
	svc := NewSyncService(remote, store, genbanks, isolates, noopCache{}, SyncConfig{
		DB:          "nuccore",
		Organism:    "Severe acute respiratory syndrome coronavirus 2",
		MinInterval: interval,
	})
	return &syncFixture{service: svc, remote: remote, store: store, genbanks: genbanks, isolates: isolates}
}

func cacheFileCount(t *testing.T, store *storage.FlatFileStore) int {
	t.Helper()
	entries, err := os.ReadDir(store.GenBankDir())
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestSyncPersistsRecords(t *testing.T) {
	fx := newSyncFixture(t, map[string]string{
		"1821109001": flatFile("MT123292", 1),
		"1821109002": flatFile("MT123293", 1),
	}, time.Millisecond)

	report, err := fx.service.SyncNCBI(context.Background())
	if err != nil {
		t.Fatalf("SyncNCBI() error: %v", err)
	}
	if report.Total != 2 || report.Persisted != 2 || report.Skipped != 0 {
		t.Errorf("report = %+v", report)
	}

	count, _ := fx.genbanks.Count(context.Background())
	if count != 2 {
		t.Errorf("genbank rows = %d, want 2", count)
	}
	if cacheFileCount(t, fx.store) != 2 {
		t.Errorf("cache files = %d, want 2", cacheFileCount(t, fx.store))
	}

	iso, err := fx.isolates.GetByAccession(context.Background(), "MT123292")
	if err != nil {
		t.Fatalf("isolate missing: %v", err)
	}
	if iso.Host == nil || *iso.Host != "Homo sapiens" {
		t.Errorf("isolate host = %v", iso.Host)
	}
	if iso.Country == nil || *iso.Country != "USA" {
		t.Errorf("isolate country = %v", iso.Country)
	}
	if iso.DateReleased == nil || *iso.DateReleased != "2020-03-15" {
		t.Errorf("isolate date_released = %v", iso.DateReleased)
	}
}

func TestSyncIdempotent(t *testing.T) {
	fx := newSyncFixture(t, map[string]string{
		"1821109001": flatFile("MT123292", 1),
		"1821109002": flatFile("MT123293", 1),
	}, time.Millisecond)

	if _, err := fx.service.SyncNCBI(context.Background()); err != nil {
		t.Fatalf("first SyncNCBI() error: %v", err)
	}
	second, err := fx.service.SyncNCBI(context.Background())
	if err != nil {
		t.Fatalf("second SyncNCBI() error: %v", err)
	}

	if second.Persisted != 0 || second.Skipped != 2 {
		t.Errorf("second run = %+v, want all skipped", second)
	}
	count, _ := fx.genbanks.Count(context.Background())
	if count != 2 {
		t.Errorf("genbank rows after rerun = %d, want 2", count)
	}
	isoCount, _ := fx.isolates.Count(context.Background())
	if isoCount != 2 {
		t.Errorf("isolate rows after rerun = %d, want 2", isoCount)
	}
	if cacheFileCount(t, fx.store) != 2 {
		t.Errorf("cache files after rerun = %d, want 2", cacheFileCount(t, fx.store))
	}
}

func TestSyncNotFoundDoesNotAbortBatch(t *testing.T) {
	fx := newSyncFixture(t, map[string]string{
		"1821109001": flatFile("MT123292", 1),
	}, time.Millisecond)

	// An id the remote cannot resolve leaves nothing behind.
	if err := fx.service.FetchRecord(context.Background(), "vanished"); err == nil {
		t.Fatalf("FetchRecord(vanished) should fail")
	}
	if cacheFileCount(t, fx.store) != 0 {
		t.Errorf("failed fetch left cache files")
	}
	count, _ := fx.genbanks.Count(context.Background())
	if count != 0 {
		t.Errorf("failed fetch left repository rows")
	}

	// The same id inside a batch fails at fetch while the rest proceed.
	fx.remote.extraIDs = []string{"vanished"}
	report, err := fx.service.SyncNCBI(context.Background())
	if err != nil {
		t.Fatalf("SyncNCBI() error: %v", err)
	}
	if report.Persisted != 1 || report.Failed[StageFetch] != 1 {
		t.Errorf("batch with failed id = %+v, want 1 persisted and 1 failed at fetch", report)
	}
	if cacheFileCount(t, fx.store) != 1 {
		t.Errorf("cache files = %d, want only the persisted record", cacheFileCount(t, fx.store))
	}
}

func TestSyncFailureStagesCounted(t *testing.T) {
	fx := newSyncFixture(t, map[string]string{
		"good":     flatFile("MT123292", 1),
		"garbage":  "this is not a genbank record\n",
		"nosource": "LOCUS       MT999999 100 bp RNA linear VRL 01-JAN-2021\nVERSION     MT999999.1\nFEATURES             Location/Qualifiers\n     CDS             1..100\n//\n",
	}, time.Millisecond)

	report, err := fx.service.SyncNCBI(context.Background())
	if err != nil {
		t.Fatalf("SyncNCBI() error: %v", err)
	}
	if report.Persisted != 1 {
		t.Errorf("persisted = %d, want 1", report.Persisted)
	}
	if report.Failed[StageParse] != 2 {
		t.Errorf("failed[parse] = %d, want 2 (report %+v)", report.Failed[StageParse], report)
	}
}

func TestSyncRateLimit(t *testing.T) {
	const interval = 50 * time.Millisecond
	fx := newSyncFixture(t, map[string]string{
		"a": flatFile("MT000001", 1),
		"b": flatFile("MT000002", 1),
		"c": flatFile("MT000003", 1),
	}, interval)

	start := time.Now()
	if _, err := fx.service.SyncNCBI(context.Background()); err != nil {
		t.Fatalf("SyncNCBI() error: %v", err)
	}
	elapsed := time.Since(start)

	// One search plus three fetches share the budget: at least three full
	// intervals must elapse after the first request.
	if want := 3 * interval; elapsed < want {
		t.Errorf("elapsed = %v, want >= %v across rate-limited requests", elapsed, want)
	}
}

func TestSyncNewVersionUpdatesIsolateNotKey(t *testing.T) {
	fx := newSyncFixture(t, map[string]string{
		"1821109001": flatFile("MT123292", 1),
	}, time.Millisecond)

	if _, err := fx.service.SyncNCBI(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, err := fx.isolates.GetByAccession(context.Background(), "MT123292")
	if err != nil {
		t.Fatal(err)
	}

	// The remote now serves version .2 of the same accession.
	fx.remote.mu.Lock()
	fx.remote.records["1821109001"] = flatFile("MT123292", 2)
	fx.remote.mu.Unlock()

	report, err := fx.service.SyncNCBI(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Persisted != 1 {
		t.Errorf("new version not persisted: %+v", report)
	}

	count, _ := fx.genbanks.Count(context.Background())
	if count != 2 {
		t.Errorf("genbank rows = %d, want one per version", count)
	}
	isoCount, _ := fx.isolates.Count(context.Background())
	if isoCount != 1 {
		t.Errorf("isolate rows = %d, accession key must stay unique", isoCount)
	}
	after, err := fx.isolates.GetByAccession(context.Background(), "MT123292")
	if err != nil {
		t.Fatal(err)
	}
	if after.Accession != before.Accession {
		t.Errorf("isolate primary key changed across versions")
	}
}
