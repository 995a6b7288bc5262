package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/docqa/rag/models"
)

// FileIndexingService keeps a watched directory in sync with the vector
// index by running files through the ingestion pipeline. Document ids are
// derived from file content, so re-indexing an unchanged file upserts onto
// the same chunk ids.
type FileIndexingService struct {
	ragService RAGService
	index      VectorIndex

	mu    sync.Mutex
	files map[string]fileState // path -> last indexed state
}

// fileState tracks what was last indexed for a path, so a changed file can
// have its previous document removed before the new one lands.
type fileState struct {
	Hash  string
	DocID string
}

// NewFileIndexingService creates a new indexing service.
func NewFileIndexingService(ragService RAGService, index VectorIndex) *FileIndexingService {
	return &FileIndexingService{
		ragService: ragService,
		index:      index,
		files:      make(map[string]fileState),
	}
}

// WatchDirectory starts a long-running process to watch for file changes in
// real-time. It blocks until the context is cancelled.
func (s *FileIndexingService) WatchDirectory(ctx context.Context, dirPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WATCHER ERROR: Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isSupportedFile(event.Name) {
					continue
				}

				// Many editors write by creating a temp file and renaming, which
				// can fire several events for one save. Create and Write are
				// handled the same way.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					log.Printf("WATCHER: File modified/created: %s. Re-indexing...", event.Name)
					if err := s.indexFile(ctx, event.Name); err != nil {
						log.Printf("WATCHER ERROR: Failed to index file %s: %v", event.Name, err)
					}
				} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					log.Printf("WATCHER: File removed/renamed: %s. Removing from index...", event.Name)
					if err := s.removeFile(ctx, event.Name); err != nil {
						log.Printf("WATCHER ERROR: Failed to delete records for %s: %v", event.Name, err)
					}
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WATCHER ERROR: %v", err)
			case <-ctx.Done():
				log.Println("WATCHER: Context cancelled, shutting down watcher.")
				return
			}
		}
	}()

	log.Printf("WATCHER: Watching directory: %s", dirPath)
	if err := watcher.Add(dirPath); err != nil {
		log.Printf("WATCHER ERROR: Failed to add path to watcher: %v", err)
	}

	<-ctx.Done()
}

// ScanAndIndexDirectory walks the directory once and indexes every
// supported file whose content changed since the last scan in this process.
func (s *FileIndexingService) ScanAndIndexDirectory(ctx context.Context, dirPath string) {
	log.Printf("INDEXER: Starting directory scan for: %s", dirPath)

	seen := make(map[string]bool)
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isSupportedFile(path) {
			return nil
		}
		seen[path] = true
		if err := s.indexFile(ctx, path); err != nil {
			log.Printf("INDEXER ERROR: Failed to index file %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("INDEXER ERROR: Error walking the path %s: %v", dirPath, err)
	}

	// Handle files deleted while the process was not watching.
	s.mu.Lock()
	var stale []string
	for path := range s.files {
		if !seen[path] {
			stale = append(stale, path)
		}
	}
	s.mu.Unlock()
	for _, path := range stale {
		log.Printf("INDEXER: File deleted: %s. Removing from index...", path)
		if err := s.removeFile(ctx, path); err != nil {
			log.Printf("INDEXER ERROR: Failed to delete records for %s: %v", path, err)
		}
	}
	log.Println("INDEXER: Directory scan finished.")
}

// indexFile ingests one file, removing a previous version first when the
// content hash changed.
func (s *FileIndexingService) indexFile(ctx context.Context, path string) error {
	hash, err := calculateFileHash(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev, known := s.files[path]
	s.mu.Unlock()
	if known && prev.Hash == hash {
		return nil // unchanged
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	filetype, err := FiletypeForFilename(path)
	if err != nil {
		return err
	}

	if known {
		// The content changed, so the new document id differs from the old
		// one; the previous chunks must go or retrieval would see both.
		if err := s.index.DeleteByDocument(ctx, prev.DocID); err != nil {
			return err
		}
	}

	resp, err := s.ragService.Ingest(ctx, models.IngestRequest{
		Filename: filepath.Base(path),
		Filetype: filetype,
		Raw:      raw,
	})
	if err != nil {
		return err
	}
	if resp.Status != models.StatusIndexed {
		return errors.New("ingestion did not reach the indexed state")
	}

	s.mu.Lock()
	s.files[path] = fileState{Hash: hash, DocID: resp.DocumentID}
	s.mu.Unlock()
	log.Printf("INDEXER: Indexed %s as document %s (%d chunks)", path, resp.DocumentID, resp.ChunkCount)
	return nil
}

func (s *FileIndexingService) removeFile(ctx context.Context, path string) error {
	s.mu.Lock()
	prev, known := s.files[path]
	delete(s.files, path)
	s.mu.Unlock()
	if !known {
		return nil
	}
	return s.index.DeleteByDocument(ctx, prev.DocID)
}

func isSupportedFile(path string) bool {
	_, err := FiletypeForFilename(path)
	return err == nil
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
