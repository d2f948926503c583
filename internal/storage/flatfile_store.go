package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotCached means no flat file is cached for the requested version.
	ErrNotCached = errors.New("storage: version not cached")
	// ErrCacheConflict means a different content is already cached under the
	// same version. Cached content is immutable; it is never overwritten.
	ErrCacheConflict = errors.New("storage: cached content differs for version")
)

// FlatFileStore keeps downloaded GenBank flat files on disk under
// {base}/genbank with filenames {accession}.{taxon}.gb. Entries are keyed by
// record version; the accession part of the name is derived from it.
type FlatFileStore struct {
	base  string
	dir   string
	taxon string
}

// NewFlatFileStore lazily creates the directory tree. An existing directory
// is fine; lacking permission to create it is a configuration error.
func NewFlatFileStore(base, taxon string) (*FlatFileStore, error) {
	dir := filepath.Join(base, "genbank")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &FlatFileStore{base: base, dir: dir, taxon: taxon}, nil
}

// GenBankDir returns the directory holding cached flat files.
func (s *FlatFileStore) GenBankDir() string {
	return s.dir
}

// Has reports whether the exact version is already cached.
func (s *FlatFileStore) Has(version string) bool {
	_, err := s.PathFor(version)
	return err == nil
}

// PathFor returns the cached path for a version, or ErrNotCached. The file on
// disk must actually carry that version: two versions of one accession share
// a filename, so existence alone is not enough.
func (s *FlatFileStore) PathFor(version string) (string, error) {
	path := s.path(version)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotCached, version)
		}
		return "", fmt.Errorf("storage: read %s: %w", path, err)
	}
	if !strings.Contains(string(content), version) {
		return "", fmt.Errorf("%w: %s", ErrNotCached, version)
	}
	return path, nil
}

// Put writes the flat file for a version. Writing identical content twice is
// a no-op after the first write. Writing different content for an already
// cached version is ErrCacheConflict. A file left by an older version of the
// same accession is superseded.
func (s *FlatFileStore) Put(version, content string) (string, error) {
	path := s.path(version)
	existing, err := os.ReadFile(path)
	if err == nil {
		if string(existing) == content {
			return path, nil
		}
		if strings.Contains(string(existing), version) {
			return "", fmt.Errorf("%w: %s", ErrCacheConflict, version)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("storage: read %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", path, err)
	}
	return path, nil
}

func (s *FlatFileStore) path(version string) string {
	name := accessionOf(version)
	if s.taxon != "" {
		name += "." + s.taxon
	}
	return filepath.Join(s.dir, name+".gb")
}

// accessionOf strips the revision suffix: "MT123292.1" -> "MT123292".
func accessionOf(version string) string {
	if i := strings.LastIndex(version, "."); i > 0 {
		return version[:i]
	}
	return version
}
