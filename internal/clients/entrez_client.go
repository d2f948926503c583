package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound means the remote has no record for the requested identifier.
// It is not retryable.
var ErrNotFound = errors.New("entrez: record not found")

// EntrezClient wraps the NCBI E-utilities discovery and download endpoints.
// Each call is one synchronous request; retry and rate-limit policy belong to
// the caller, not the client.
type EntrezClient interface {
	Search(ctx context.Context, params SearchParams) ([]string, error)
	Fetch(ctx context.Context, params FetchParams) (string, error)
}

// SearchParams enumerates exactly what esearch consumes.
type SearchParams struct {
	DB     string
	Term   string
	RetMax int // cap on returned ids; <= 0 means all matches
}

// FetchParams enumerates exactly what efetch consumes.
type FetchParams struct {
	DB      string
	ID      string
	RetType string
}

type entrezClient struct {
	baseURL string
	client  *http.Client
}

type EntrezConfig struct {
	BaseURL string
}

func NewEntrezClient(config EntrezConfig) EntrezClient {
	return &entrezClient{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs the two-step esearch protocol: a count-only query first, then a
// reissue with the count as retmax. The remote reports the total separately
// from the id list, and a single unbounded request could silently truncate.
func (c *entrezClient) Search(ctx context.Context, params SearchParams) ([]string, error) {
	count, _, err := c.esearch(ctx, params.DB, params.Term, 0)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	retmax := count
	if params.RetMax > 0 && params.RetMax < retmax {
		retmax = params.RetMax
	}

	_, ids, err := c.esearch(ctx, params.DB, params.Term, retmax)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *entrezClient) esearch(ctx context.Context, db, term string, retmax int) (int, []string, error) {
	query := url.Values{}
	query.Set("db", db)
	query.Set("term", term)
	query.Set("retmax", strconv.Itoa(retmax))
	query.Set("retmode", "json")

	reqURL := fmt.Sprintf("%s/esearch.fcgi?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "virosync/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("esearch returned status %d", resp.StatusCode)
	}

	var result esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, nil, fmt.Errorf("decode JSON: %w", err)
	}

	count, err := strconv.Atoi(result.Result.Count)
	if err != nil {
		return 0, nil, fmt.Errorf("esearch count %q: %w", result.Result.Count, err)
	}
	return count, result.Result.IDList, nil
}

// Fetch downloads one raw flat-file record. An empty body or a 400/404 from
// the remote means the identifier does not resolve to a record.
func (c *entrezClient) Fetch(ctx context.Context, params FetchParams) (string, error) {
	query := url.Values{}
	query.Set("db", params.DB)
	query.Set("id", params.ID)
	query.Set("rettype", params.RetType)

	reqURL := fmt.Sprintf("%s/efetch.fcgi?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "virosync/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: id %s", ErrNotFound, params.ID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("efetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("%w: id %s", ErrNotFound, params.ID)
	}
	return string(body), nil
}
