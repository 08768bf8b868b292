// Package filesystem provides an item source over a directory tree.
// It is the canonical acquirer: every file becomes one source item
// keyed by its absolute path, so re-scans are idempotent.
package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/logger"
)

// Ensure Source implements the interface.
var _ driven.ItemSource = (*Source)(nil)

// MaxFileSize skips files too large to embed usefully.
const MaxFileSize = 16 << 20 // 16 MiB

// Source walks and watches one directory tree.
type Source struct {
	root string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a filesystem source rooted at the given directory.
func New(root string) *Source {
	return &Source{root: root}
}

// Scan emits every eligible file under the root. The items channel is
// closed when the walk completes; per-file failures arrive on the
// error channel without stopping the walk.
func (s *Source) Scan(ctx context.Context) (<-chan domain.SourceItem, <-chan error) {
	items := make(chan domain.SourceItem)
	errs := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errs)

		if _, err := os.Stat(s.root); err != nil {
			errs <- fmt.Errorf("root %q does not exist: %w", s.root, err)
			return
		}

		err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if hidden(d.Name()) && path != s.root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}

			item, err := s.loadItem(path)
			if err != nil {
				select {
				case errs <- err:
				default:
					logger.Warn("Scan error for %s: %v", path, err)
				}
				return nil
			}

			select {
			case items <- *item:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	return items, errs
}

// Watch emits items as files are created or modified under the root,
// until the context is cancelled. New directories are watched as they
// appear.
func (s *Source) Watch(ctx context.Context) (<-chan domain.SourceItem, <-chan error) {
	items := make(chan domain.SourceItem)
	errs := make(chan error, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(items)
		errs <- fmt.Errorf("creating watcher: %w", err)
		close(errs)
		return items, errs
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	if err := s.watchTree(watcher); err != nil {
		watcher.Close()
		close(items)
		errs <- err
		close(errs)
		return items, errs
	}

	go func() {
		defer close(items)
		defer close(errs)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				if hidden(filepath.Base(event.Name)) {
					continue
				}

				info, err := os.Stat(event.Name)
				if err != nil {
					continue // Removed between event and stat
				}
				if info.IsDir() {
					if event.Has(fsnotify.Create) {
						if err := watcher.Add(event.Name); err != nil {
							logger.Warn("Watching %s failed: %v", event.Name, err)
						}
					}
					continue
				}

				item, err := s.loadItem(event.Name)
				if err != nil {
					logger.Warn("Watch load for %s failed: %v", event.Name, err)
					continue
				}

				select {
				case items <- *item:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
					logger.Warn("Watcher error: %v", err)
				}
			}
		}
	}()

	return items, errs
}

// Close releases the watcher if one is active.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}

// watchTree registers the root and every visible subdirectory.
func (s *Source) watchTree(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) && path != s.root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// loadItem reads one file into a source item.
func (s *Source) loadItem(path string) (*domain.SourceItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%s exceeds size limit (%d bytes)", path, info.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	sourceType, mimeType := classify(path)
	return &domain.SourceItem{
		SourceType: sourceType,
		SourceID:   abs,
		SourceURI:  "file://" + abs,
		Title:      titleFromPath(path),
		RawContent: content,
		MIMEType:   mimeType,
		CreatedAt:  info.ModTime().UTC(),
	}, nil
}

// classify maps a file extension to a source type and MIME type.
func classify(path string) (domain.SourceType, string) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType := mime.TypeByExtension(ext)

	switch ext {
	case ".eml":
		return domain.SourceEmail, "message/rfc822"
	case ".pdf":
		return domain.SourcePDF, "application/pdf"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".tiff":
		return domain.SourceImage, mimeType
	case ".html", ".htm":
		return domain.SourceWebpage, "text/html"
	default:
		if mimeType == "" {
			mimeType = "text/plain"
		}
		return domain.SourceNote, mimeType
	}
}

// titleFromPath extracts a human-readable title from a file path.
func titleFromPath(path string) string {
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

// hidden reports whether a file or directory name is dot-prefixed.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
