package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/vector"
)

// metadata is the on-disk metadata_<id>.json document.
type metadata struct {
	Version      int    `json:"version"`
	SessionID    string `json:"session_id"`
	Filename     string `json:"filename"`
	ChunksCount  int    `json:"chunks_count"`
	OriginalText string `json:"original_text,omitempty"`
}

// Store persists sessions as a file pair per session: the serialized
// vector index in vectors_<id>.bin and the metadata in
// metadata_<id>.json. Writes go through a temp file and rename so a
// crash never leaves a half-written file behind.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the storage directory.
func (st *Store) Dir() string {
	return st.dir
}

func (st *Store) vectorsPath(id string) string {
	return filepath.Join(st.dir, "vectors_"+id+".bin")
}

func (st *Store) metadataPath(id string) string {
	return filepath.Join(st.dir, "metadata_"+id+".json")
}

// Save writes the session's file pair. The vectors file lands before
// the metadata file, so anything the metadata describes is already on
// disk when the metadata becomes visible.
func (st *Store) Save(s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("session has no id")
	}

	if err := st.writeAtomic(st.vectorsPath(s.ID), func(f *os.File) error {
		return s.Index.EncodeTo(f)
	}); err != nil {
		return fmt.Errorf("writing vectors for session %s: %w", s.ID, err)
	}

	meta := metadata{
		Version:      MetadataV1,
		SessionID:    s.ID,
		Filename:     s.Filename,
		ChunksCount:  s.ChunksCount(),
		OriginalText: s.OriginalText,
	}
	if err := st.writeAtomic(st.metadataPath(s.ID), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("writing metadata for session %s: %w", s.ID, err)
	}

	st.logger.Debug("persisted session",
		zap.String("session_id", s.ID),
		zap.String("filename", s.Filename),
		zap.Int("chunks_count", meta.ChunksCount),
	)

	return nil
}

// writeAtomic writes via a temp file in the same directory, fsyncs, and
// renames over the target.
func (st *Store) writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(st.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// Load reads a session's file pair back into memory. A missing or
// partial pair reports ErrNotFound.
func (st *Store) Load(id string) (*Session, error) {
	metaBytes, err := os.ReadFile(st.metadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading metadata for session %s: %w", id, err)
	}

	var meta metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata for session %s: %w", id, err)
	}
	if meta.Version > MetadataV1 {
		return nil, fmt.Errorf("session %s: metadata version %d is newer than supported version %d", id, meta.Version, MetadataV1)
	}

	f, err := os.Open(st.vectorsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading vectors for session %s: %w", id, err)
	}
	defer f.Close()

	index, err := vector.DecodeFrom(f)
	if err != nil {
		return nil, fmt.Errorf("decoding vectors for session %s: %w", id, err)
	}

	return &Session{
		ID:           id,
		Filename:     meta.Filename,
		OriginalText: meta.OriginalText,
		Index:        index,
	}, nil
}

// List scans the storage directory for session metadata and returns one
// Info per persisted session. Unreadable entries are skipped with a
// warning rather than failing the whole listing.
func (st *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("reading storage directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "metadata_") || !strings.HasSuffix(name, ".json") {
			continue
		}

		metaBytes, err := os.ReadFile(filepath.Join(st.dir, name))
		if err != nil {
			st.logger.Warn("skipping unreadable session metadata",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}

		var meta metadata
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			st.logger.Warn("skipping corrupt session metadata",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}

		infos = append(infos, Info{
			SessionID:   meta.SessionID,
			Filename:    meta.Filename,
			ChunksCount: meta.ChunksCount,
		})
	}

	return infos, nil
}

// Delete removes a session's file pair and reports whether anything
// existed to delete.
func (st *Store) Delete(id string) (bool, error) {
	existed := false

	for _, path := range []string{st.vectorsPath(id), st.metadataPath(id)} {
		err := os.Remove(path)
		switch {
		case err == nil:
			existed = true
		case os.IsNotExist(err):
		default:
			return existed, fmt.Errorf("deleting session %s: %w", id, err)
		}
	}

	if existed {
		st.logger.Debug("deleted session files", zap.String("session_id", id))
	}

	return existed, nil
}
