// Package github provides a document loader over a GitHub repository.
// Files are enumerated from the git tree in a single API call and
// versioned by blob SHA, so unchanged files cost nothing on re-ingestion.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxFileSize = 1024 * 1024
)

// Metadata field names produced by this loader.
const (
	FieldPath    = "path"
	FieldVersion = "version"
	FieldName    = "name"
)

// Config holds configuration for the GitHub loader.
type Config struct {
	// Owner is the repository owner (required).
	Owner string

	// Repo is the repository name (required).
	Repo string

	// Branch is the git ref to read. Empty uses the default branch.
	Branch string

	// Token is a GitHub access token (required).
	Token string

	// Patterns are glob patterns files must match. Empty matches all.
	Patterns []string

	// MaxFileSize caps blob size in bytes (default: 1MB).
	MaxFileSize int64

	// Timeout is the HTTP request timeout (default: 30s).
	Timeout time.Duration
}

// Loader reads documents from one GitHub repository.
type Loader struct {
	gh          *gh.Client
	rateLimiter *RateLimiter
	owner       string
	repo        string
	branch      string
	patterns    []string
	maxFileSize int64
}

// New creates a GitHub loader for owner/repo.
func New(cfg Config) (*Loader, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github: owner and repo are required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("github: access token is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = cfg.Timeout

	return &Loader{
		gh:          gh.NewClient(tc),
		rateLimiter: NewRateLimiter(),
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		branch:      cfg.Branch,
		patterns:    cfg.Patterns,
		maxFileSize: cfg.MaxFileSize,
	}, nil
}

// WithBaseURL points the loader at a GitHub Enterprise or test server.
func (l *Loader) WithBaseURL(baseURL string) (*Loader, error) {
	client, err := l.gh.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("github: setting base URL: %w", err)
	}
	l.gh = client
	return l, nil
}

// LoadMetadata fetches the repository tree recursively and streams one
// metadata record per eligible blob. Both channels are closed when the
// enumeration finishes.
func (l *Loader) LoadMetadata(ctx context.Context) (<-chan domain.Metadata, <-chan error) {
	metaCh := make(chan domain.Metadata)
	errCh := make(chan error, 1)

	go func() {
		defer close(metaCh)
		defer close(errCh)

		branch := l.branch
		if branch == "" {
			repo, err := l.getRepository(ctx)
			if err != nil {
				errCh <- err
				return
			}
			branch = repo.GetDefaultBranch()
		}

		tree, err := l.getTree(ctx, branch)
		if err != nil {
			errCh <- err
			return
		}

		for _, entry := range tree.Entries {
			if entry.GetType() != "blob" {
				continue
			}
			entryPath := entry.GetPath()
			if !l.eligible(entryPath, int64(entry.GetSize())) {
				continue
			}

			md := domain.Metadata{
				FieldPath:    entryPath,
				FieldVersion: entry.GetSHA(),
				FieldName:    path.Base(entryPath),
			}
			select {
			case metaCh <- md:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return metaCh, errCh
}

// LoadDocument fetches the blob named by the metadata record. A blob that
// no longer exists returns (nil, nil).
func (l *Loader) LoadDocument(ctx context.Context, md domain.Metadata) (*domain.Document, error) {
	sha, ok := md[FieldVersion].(string)
	if !ok || sha == "" {
		return nil, fmt.Errorf("github: metadata has no blob SHA")
	}

	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	blob, resp, err := l.gh.Git.GetBlob(ctx, l.owner, l.repo, sha)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		if rlErr := l.rateLimiter.CheckRateLimit(httpResponse(resp)); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("get blob %s: %w", sha, err)
	}
	l.rateLimiter.UpdateFromResponse(httpResponse(resp))

	content, err := decodeBlob(blob)
	if err != nil {
		return nil, fmt.Errorf("decode blob %s: %w", sha, err)
	}

	return &domain.Document{
		Content:  string(content),
		Metadata: md,
	}, nil
}

func (l *Loader) getRepository(ctx context.Context) (*gh.Repository, error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	repo, resp, err := l.gh.Repositories.Get(ctx, l.owner, l.repo)
	if err != nil {
		if rlErr := l.rateLimiter.CheckRateLimit(httpResponse(resp)); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("get repo %s/%s: %w", l.owner, l.repo, err)
	}
	l.rateLimiter.UpdateFromResponse(httpResponse(resp))
	return repo, nil
}

func (l *Loader) getTree(ctx context.Context, ref string) (*gh.Tree, error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	tree, resp, err := l.gh.Git.GetTree(ctx, l.owner, l.repo, ref, true)
	if err != nil {
		if rlErr := l.rateLimiter.CheckRateLimit(httpResponse(resp)); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("get tree %s: %w", ref, err)
	}
	l.rateLimiter.UpdateFromResponse(httpResponse(resp))

	if tree.GetTruncated() {
		return nil, fmt.Errorf("github: tree for %s/%s is truncated, repository too large",
			l.owner, l.repo)
	}
	return tree, nil
}

// eligible reports whether a blob should be ingested.
func (l *Loader) eligible(entryPath string, size int64) bool {
	if strings.HasPrefix(path.Base(entryPath), ".") {
		return false
	}
	for _, part := range strings.Split(entryPath, "/") {
		if skipDir(part) {
			return false
		}
	}
	if isBinaryExtension(entryPath) {
		return false
	}
	if size > l.maxFileSize {
		return false
	}
	return matchesPatterns(entryPath, l.patterns)
}

// decodeBlob decodes blob content, handling base64 transfer encoding.
func decodeBlob(blob *gh.Blob) ([]byte, error) {
	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(blob.GetContent()), nil
}

func httpResponse(resp *gh.Response) *http.Response {
	if resp == nil {
		return nil
	}
	return resp.Response
}
