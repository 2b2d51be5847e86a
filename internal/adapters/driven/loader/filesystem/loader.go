// Package filesystem provides a document loader over a local directory
// tree. File versions are content hashes, so unchanged files are skipped
// on re-ingestion no matter what their timestamps say.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/corpora-dev/corpora/internal/core/domain"
	"github.com/corpora-dev/corpora/internal/core/ports/driven"
	"github.com/corpora-dev/corpora/internal/logger"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// DefaultMaxFileSize is the largest file the loader will read (1MB).
const DefaultMaxFileSize = 1024 * 1024

// Metadata field names produced by this loader.
const (
	FieldPath    = "path"
	FieldVersion = "version"
	FieldName    = "name"
)

// Config holds configuration for the filesystem loader.
type Config struct {
	// Root is the directory to load documents from (required).
	Root string

	// Patterns are glob patterns files must match. Empty matches all.
	Patterns []string

	// MaxFileSize caps file size in bytes (default: 1MB).
	MaxFileSize int64
}

// Loader enumerates and reads text files under a root directory.
type Loader struct {
	root        string
	patterns    []string
	maxFileSize int64
}

// New creates a filesystem loader rooted at cfg.Root.
func New(cfg Config) (*Loader, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("filesystem: root directory is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("filesystem: resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("filesystem: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesystem: %s is not a directory", root)
	}

	maxSize := cfg.MaxFileSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Loader{
		root:        root,
		patterns:    cfg.Patterns,
		maxFileSize: maxSize,
	}, nil
}

// Root returns the absolute root directory.
func (l *Loader) Root() string {
	return l.root
}

// LoadMetadata walks the tree and streams one metadata record per eligible
// file. Both channels are closed when the walk finishes.
func (l *Loader) LoadMetadata(ctx context.Context) (<-chan domain.Metadata, <-chan error) {
	metaCh := make(chan domain.Metadata)
	errCh := make(chan error, 1)

	go func() {
		defer close(metaCh)
		defer close(errCh)

		err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if skipDir(d.Name()) && path != l.root {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(l.root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if !l.eligible(rel, d) {
				return nil
			}

			version, err := hashFile(path)
			if err != nil {
				// Vanished between walk and read; the next run catches it.
				logger.Debug("Skipping %s: %v", rel, err)
				return nil
			}

			md := domain.Metadata{
				FieldPath:    rel,
				FieldVersion: version,
				FieldName:    filepath.Base(rel),
			}
			select {
			case metaCh <- md:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			errCh <- fmt.Errorf("walking %s: %w", l.root, err)
		}
	}()

	return metaCh, errCh
}

// LoadDocument reads the file named by the metadata record. A file that
// vanished since enumeration returns (nil, nil).
func (l *Loader) LoadDocument(ctx context.Context, md domain.Metadata) (*domain.Document, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	rel, ok := md[FieldPath].(string)
	if !ok || rel == "" {
		return nil, fmt.Errorf("filesystem: metadata has no path")
	}

	path := filepath.Join(l.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(path, l.root+string(filepath.Separator)) && path != l.root {
		return nil, fmt.Errorf("filesystem: path %s escapes root", rel)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}

	return &domain.Document{
		Content:  string(content),
		Metadata: md,
	}, nil
}

// eligible reports whether a file should be ingested.
func (l *Loader) eligible(rel string, d fs.DirEntry) bool {
	if strings.HasPrefix(filepath.Base(rel), ".") {
		return false
	}
	if isBinaryExtension(rel) {
		return false
	}
	if !matchesPatterns(rel, l.patterns) {
		return false
	}
	info, err := d.Info()
	if err != nil || info.Size() > l.maxFileSize {
		return false
	}
	return true
}

// hashFile returns the hex SHA-256 of the file contents.
func hashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

// skipDir reports whether a directory subtree should be skipped entirely.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor"
}

// matchesPatterns checks if a path matches any of the glob patterns.
func matchesPatterns(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
		// Also try matching against full path
		matched, err = filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// isBinaryExtension checks if a file extension indicates a binary file.
func isBinaryExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	binaryExts := map[string]bool{
		".exe": true, ".dll": true, ".so": true, ".dylib": true,
		".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true,
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
		".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
		".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
		".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
		".bin": true, ".dat": true, ".db": true, ".sqlite": true,
		".pyc": true, ".pyo": true, ".class": true, ".o": true, ".a": true,
	}
	return binaryExts[ext]
}
