package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/buildercred/zkcred/log"
	"github.com/buildercred/zkcred/types"
)

// ProgressFunc reports download progress. total is the expected content
// length, or 0 when the server does not announce it.
type ProgressFunc func(done, total int64)

// Store is the client of the remote artifact store. It downloads immutable
// circuit artifacts by URL and verifies every download against the release
// manifest before handing the bytes to the caller.
type Store struct {
	baseURL  string
	client   *http.Client
	manifest Manifest
}

// NewStore creates a store client for the given base URL. The manifest is
// fetched lazily on first use unless LoadManifest is called first.
func NewStore(baseURL string) (*Store, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid artifact store URL: %w", err)
	}
	return &Store{
		baseURL: baseURL,
		client:  &http.Client{},
	}, nil
}

// SetManifest installs an already-parsed manifest, used by tests and by
// deployments that pin the manifest at build time.
func (s *Store) SetManifest(m Manifest) { s.manifest = m }

// LoadManifest fetches and parses the release manifest from the store.
func (s *Store) LoadManifest(ctx context.Context) error {
	manifestURL := s.baseURL + "/manifest.json"
	data, err := s.get(ctx, manifestURL)
	if err != nil {
		return &FetchError{URL: manifestURL, Err: err}
	}
	m, err := ParseManifest(data)
	if err != nil {
		return err
	}
	s.manifest = m
	log.Debugw("artifact manifest loaded", "url", manifestURL, "entries", len(m))
	return nil
}

// Manifest returns the loaded manifest, fetching it first if needed.
func (s *Store) Manifest(ctx context.Context) (Manifest, error) {
	if s.manifest == nil {
		if err := s.LoadManifest(ctx); err != nil {
			return nil, err
		}
	}
	return s.manifest, nil
}

// BaseURL returns the configured base URL of the artifact store.
func (s *Store) BaseURL() string {
	return s.baseURL
}

// URL returns the download URL for a circuit artifact.
func (s *Store) URL(circuit types.CircuitID, at types.ArtifactType) string {
	return fmt.Sprintf("%s/%s", s.baseURL, EntryName(circuit, at))
}

// Size queries the store for the byte size of a circuit artifact without
// downloading it. It returns 0 when the server does not announce a content
// length.
func (s *Store) Size(ctx context.Context, circuit types.CircuitID, at types.ArtifactType) (int64, error) {
	fileURL := s.URL(circuit, at)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return 0, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return 0, &FetchError{URL: fileURL, Err: err}
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnf("error closing response body: %v", err)
		}
	}()
	if res.StatusCode != http.StatusOK {
		return 0, &FetchError{URL: fileURL, Err: fmt.Errorf("http status %d", res.StatusCode)}
	}
	if res.ContentLength < 0 {
		return 0, nil
	}
	return res.ContentLength, nil
}

// Fetch downloads one circuit artifact, reporting progress through onProgress
// (which may be nil), and verifies the bytes against the manifest digest. On
// a digest mismatch it returns an IntegrityError and discards the bytes; they
// must never reach the cache.
func (s *Store) Fetch(ctx context.Context, circuit types.CircuitID, at types.ArtifactType,
	onProgress ProgressFunc,
) ([]byte, error) {
	manifest, err := s.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	expectedHash, err := manifest.Hash(circuit, at)
	if err != nil {
		return nil, err
	}
	fileURL := s.URL(circuit, at)
	start := time.Now()
	content, err := s.download(ctx, fileURL, onProgress)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: err}
	}
	sum := sha256.Sum256(content)
	if !bytes.Equal(sum[:], expectedHash) {
		return nil, &IntegrityError{
			Name:     EntryName(circuit, at),
			Expected: expectedHash,
			Got:      sum[:],
		}
	}
	log.Debugw("artifact downloaded", "url", fileURL,
		"size", len(content), "took", time.Since(start).String())
	return content, nil
}

// progressReader wraps an io.Reader and invokes the progress callback as
// bytes flow through it.
type progressReader struct {
	reader     io.Reader
	done       int64
	total      int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.done += int64(n)
	if pr.onProgress != nil && n > 0 {
		pr.onProgress(pr.done, pr.total)
	}
	return n, err
}

func (s *Store) get(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnf("error closing response body: %v", err)
		}
	}()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

func (s *Store) download(ctx context.Context, fileURL string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnf("error closing response body: %v", err)
		}
	}()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", res.StatusCode)
	}
	total := res.ContentLength
	if total < 0 {
		total = 0
	}
	pr := &progressReader{reader: res.Body, total: total, onProgress: onProgress}
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	if _, err := io.Copy(&buf, pr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
