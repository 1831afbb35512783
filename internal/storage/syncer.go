package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Syncer mirrors snapshot files between the local snapshot directory and
// object storage. Transfers within one sync run in parallel, bounded by
// a semaphore; sync never overlaps the measured query paths.
type Syncer struct {
	storage     ObjectStorage
	prefix      string
	concurrency int
}

// SyncResult reports the outcome of one push or pull.
type SyncResult struct {
	Transferred []string
	Errors      map[string]error
}

// Failed reports whether any transfer in the run failed.
func (r *SyncResult) Failed() bool {
	return len(r.Errors) > 0
}

// NewSyncer creates a syncer writing under the given object prefix.
func NewSyncer(storage ObjectStorage, prefix string, concurrency int) *Syncer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Syncer{
		storage:     storage,
		prefix:      prefix,
		concurrency: concurrency,
	}
}

// Push uploads the given local files, keyed by their base names under
// the syncer prefix.
func (s *Syncer) Push(ctx context.Context, localPaths []string) (*SyncResult, error) {
	result := &SyncResult{Errors: make(map[string]error)}
	if len(localPaths) == 0 {
		return result, nil
	}

	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, localPath := range localPaths {
		objectPath := s.objectPath(localPath)

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[objectPath] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(local, object string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := s.storage.Upload(ctx, local, object); err != nil {
				mu.Lock()
				result.Errors[object] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.Transferred = append(result.Transferred, object)
			mu.Unlock()
		}(localPath, objectPath)
	}

	wg.Wait()
	sort.Strings(result.Transferred)
	return result, nil
}

// Pull downloads the named objects from under the syncer prefix into the
// destination directory.
func (s *Syncer) Pull(ctx context.Context, names []string, destDir string) (*SyncResult, error) {
	result := &SyncResult{Errors: make(map[string]error)}
	if len(names) == 0 {
		return result, nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, name := range names {
		objectPath := path.Join(s.prefix, path.Base(name))
		localPath := filepath.Join(destDir, path.Base(name))

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[objectPath] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(object, local string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := s.storage.Download(ctx, object, local); err != nil {
				mu.Lock()
				result.Errors[object] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.Transferred = append(result.Transferred, object)
			mu.Unlock()
		}(objectPath, localPath)
	}

	wg.Wait()
	sort.Strings(result.Transferred)
	return result, nil
}

// List returns the object keys currently stored under the syncer prefix.
func (s *Syncer) List(ctx context.Context) ([]string, error) {
	objects, err := s.storage.ListObjects(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(objects)
	return objects, nil
}

// objectPath maps a local file to its object key: the base name under
// the prefix, so directory layout never leaks into storage.
func (s *Syncer) objectPath(localPath string) string {
	return path.Join(s.prefix, filepath.Base(localPath))
}
