// Package sqlitevec provides a SQLite-backed shared passage index using
// sqlite-vec. Unlike the per-session in-memory index, the shared index
// spans every session and powers cross-session search.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/vector"
)

// SharedIndex stores passages from all sessions in SQLite and answers
// KNN queries via the vec0 virtual table.
type SharedIndex struct {
	db     *sql.DB
	logger *zap.Logger
}

// Hit is one cross-session search result.
type Hit struct {
	SessionID string
	Passage   string
	Score     float64
}

// Config holds configuration for the shared index.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewSharedIndex creates a shared index backed by sqlite-vec.
func NewSharedIndex(c Config, logger *zap.Logger) (*SharedIndex, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so passage text and its
	// session live in a companion table keyed by the same rowid.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS passages (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			passage TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating passages table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS passages_session ON passages(session_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session index: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS passage_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec shared index initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &SharedIndex{
		db:     db,
		logger: logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB
// format sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Add stores a session's passage/vector pairs. Re-indexing a session
// replaces its previous passages wholesale, matching how a new document
// replaces a session's in-memory index.
func (s *SharedIndex) Add(ctx context.Context, sessionID string, entries []vector.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSessionTx(ctx, tx, sessionID); err != nil {
		return err
	}

	for i, e := range entries {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO passages(session_id, passage) VALUES (?, ?)`,
			sessionID, e.Passage,
		)
		if err != nil {
			return fmt.Errorf("inserting passage %d: %w", i, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for passage %d: %w", i, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO passage_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, serializeFloat32(e.Vector),
		); err != nil {
			return fmt.Errorf("inserting embedding for passage %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("indexed session passages in sqlite-vec",
		zap.String("session_id", sessionID),
		zap.Int("count", len(entries)),
	)

	return nil
}

// Search finds the topK nearest passages across every session.
func (s *SharedIndex) Search(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}

	// KNN query via vec0 MATCH, then JOIN back for session and text.
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			p.session_id,
			p.passage,
			pe.distance
		FROM passage_embeddings pe
		INNER JOIN passages p ON p.rowid = pe.rowid
		WHERE pe.embedding MATCH ?
			AND pe.k = ?
		ORDER BY pe.distance
	`, serializeFloat32(query), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var distance float64
		if err := rows.Scan(&hit.SessionID, &hit.Passage, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		// Lower distance means higher similarity.
		hit.Score = 1.0 / (1.0 + distance)
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	return hits, nil
}

// DeleteSession removes every passage indexed for the session.
func (s *SharedIndex) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSessionTx(ctx, tx, sessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("removed session from sqlite-vec",
		zap.String("session_id", sessionID),
	)

	return nil
}

func deleteSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM passages WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	// vec0 does not support mass DELETE by join, remove row by row.
	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM passage_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM passages WHERE session_id = ?`, sessionID,
	); err != nil {
		return fmt.Errorf("deleting passages: %w", err)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *SharedIndex) Close() error {
	return s.db.Close()
}
