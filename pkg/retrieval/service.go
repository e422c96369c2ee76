// Package retrieval orchestrates document indexing and querying: it
// chunks documents, embeds passages in batches, maintains per-session
// vector indexes, and persists sessions through the store.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/chunker"
	"github.com/papercomputeco/folio/pkg/embeddings"
	"github.com/papercomputeco/folio/pkg/eventstream"
	"github.com/papercomputeco/folio/pkg/eventstream/nop"
	"github.com/papercomputeco/folio/pkg/session"
	"github.com/papercomputeco/folio/pkg/vector"
)

const (
	// DefaultBatchSize is how many passages are embedded per provider call.
	DefaultBatchSize = 50

	// DefaultTopK is the number of passages a query returns when the
	// caller does not ask for a specific k.
	DefaultTopK = 3
)

// SharedIndexer mirrors a session's passages into a cross-session
// index. Mirroring is best-effort: failures are logged, never fatal to
// the indexing operation.
type SharedIndexer interface {
	Add(ctx context.Context, sessionID string, entries []vector.Entry) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Config holds the service's chunking and batching parameters.
type Config struct {
	// ChunkSize and ChunkOverlap are the default chunking parameters,
	// overridable per document.
	ChunkSize    int
	ChunkOverlap int

	// BatchSize is how many passages go into one embedding call.
	// Defaults to DefaultBatchSize.
	BatchSize int
}

// Document is one upload to index into a session.
type Document struct {
	Filename string
	Blocks   []string

	// ChunkSize overrides the service default when positive;
	// ChunkOverlap applies only alongside a ChunkSize override.
	ChunkSize    int
	ChunkOverlap int
}

// Result reports the outcome of indexing a document.
type Result struct {
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	ChunksCount int    `json:"chunks_count"`
}

// QueryResult is the retrieval output for one query.
type QueryResult struct {
	Context        string   `json:"context"`
	RelevantChunks []string `json:"relevant_chunks"`
	Filename       string   `json:"filename"`
}

// Service is the retrieval orchestrator. Indexing for one session id is
// serialized by a per-id lock; queries are read-only and take no lock.
type Service struct {
	cfg       Config
	store     *session.Store
	cache     *session.Cache
	embedder  embeddings.Embedder
	shared    SharedIndexer
	publisher eventstream.Publisher
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithSharedIndex mirrors indexed passages into a cross-session index.
func WithSharedIndex(idx SharedIndexer) Option {
	return func(s *Service) { s.shared = idx }
}

// WithPublisher emits a document event after each successful indexing.
func WithPublisher(p eventstream.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a retrieval service. Zero config fields fall back
// to the chunker and batching defaults.
func NewService(cfg Config, store *session.Store, embedder embeddings.Embedder, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
		if cfg.ChunkOverlap <= 0 {
			cfg.ChunkOverlap = chunker.DefaultChunkOverlap
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if _, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		store:     store,
		cache:     session.NewCache(),
		embedder:  embedder,
		publisher: nop.NewPublisher(),
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateSession allocates a fresh session id and caches an empty
// session under it.
func (s *Service) CreateSession() string {
	sess := session.New()
	s.cache.Put(sess)

	s.logger.Debug("created session", zap.String("session_id", sess.ID))
	return sess.ID
}

// sessionLock returns the mutex serializing indexing for one id.
func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// ProcessDocument chunks, embeds, and indexes a document into the
// session, replacing any previously indexed document wholesale. The
// returned ChunksCount is the number of passages actually indexed,
// which can be lower than the number chunked when batches are skipped.
func (s *Service) ProcessDocument(ctx context.Context, id string, doc Document) (Result, error) {
	if id == "" {
		return Result{}, fmt.Errorf("session id is required")
	}

	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if len(doc.Blocks) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Filename)
	}

	chunkSize, chunkOverlap := s.cfg.ChunkSize, s.cfg.ChunkOverlap
	if doc.ChunkSize > 0 {
		chunkSize, chunkOverlap = doc.ChunkSize, doc.ChunkOverlap
	}
	ck, err := chunker.New(chunkSize, chunkOverlap)
	if err != nil {
		return Result{}, err
	}

	passages := ck.Split(doc.Blocks)
	index := vector.NewIndex()
	skipped := 0

	for start := 0; start < len(passages); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch := passages[start:end]

		vectors, err := s.embedder.EmbedBatch(ctx, batch)
		switch {
		case err == nil:
			for i, p := range batch {
				index.Add(p, vectors[i])
			}
		case errors.Is(err, embeddings.ErrLimitExceeded):
			s.logger.Warn("embedding batch exceeded provider limit, re-chunking",
				zap.String("session_id", id),
				zap.Int("batch_start", start),
				zap.Int("batch_len", len(batch)),
			)
			for _, p := range batch {
				skipped += s.recoverPassage(ctx, id, index, p, chunkSize, chunkOverlap)
			}
		default:
			s.logger.Warn("embedding batch failed, skipping",
				zap.String("session_id", id),
				zap.Int("batch_start", start),
				zap.Int("batch_len", len(batch)),
				zap.Error(err),
			)
			skipped += len(batch)
		}
	}

	if index.Len() == 0 {
		return Result{}, fmt.Errorf("%w: %d passages attempted", ErrIndexingFailed, len(passages))
	}

	sess := &session.Session{
		ID:           id,
		Filename:     doc.Filename,
		OriginalText: strings.Join(doc.Blocks, "\n\n"),
		Index:        index,
	}
	s.cache.Put(sess)

	if err := s.store.Save(sess); err != nil {
		return Result{}, fmt.Errorf("persisting session %s: %w", id, err)
	}

	if s.shared != nil {
		if err := s.shared.Add(ctx, id, index.Entries()); err != nil {
			s.logger.Warn("shared index update failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}

	result := Result{
		SessionID:   id,
		Filename:    doc.Filename,
		ChunksCount: index.Len(),
	}

	event := &eventstream.DocumentIndexedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeDocumentIndexed,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		SessionID:     id,
		Filename:      doc.Filename,
		ChunksCount:   result.ChunksCount,
		SkippedCount:  skipped,
	}
	if err := s.publisher.PublishDocumentIndexed(ctx, event); err != nil {
		s.logger.Warn("document event publish failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}

	s.logger.Info("indexed document",
		zap.String("session_id", id),
		zap.String("filename", doc.Filename),
		zap.Int("chunks_count", result.ChunksCount),
		zap.Int("skipped", skipped),
	)

	return result, nil
}

// recoverPassage re-chunks one oversized passage at halved sizes and
// embeds the sub-passages individually. Returns how many sub-passages
// were skipped; 0 means the passage was fully recovered.
func (s *Service) recoverPassage(ctx context.Context, id string, index *vector.Index, passage string, size, overlap int) int {
	for sub := size / 2; sub >= chunker.FloorChunkSize; sub /= 2 {
		// Keep the configured overlap ratio at the smaller size.
		subOverlap := 0
		if size > 0 {
			subOverlap = sub * overlap / size
		}

		ck, err := chunker.New(sub, subOverlap)
		if err != nil {
			break
		}

		pieces := ck.Split([]string{passage})
		vectors := make([][]float32, 0, len(pieces))
		tooLarge := false

		for _, piece := range pieces {
			vec, err := s.embedder.Embed(ctx, piece)
			if errors.Is(err, embeddings.ErrLimitExceeded) {
				tooLarge = true
				break
			}
			if err != nil {
				s.logger.Warn("sub-passage embedding failed, skipping passage",
					zap.String("session_id", id),
					zap.Int("sub_chunk_size", sub),
					zap.Error(err),
				)
				return 1
			}
			vectors = append(vectors, vec)
		}

		if !tooLarge {
			for i, piece := range pieces {
				index.Add(piece, vectors[i])
			}
			return 0
		}
	}

	s.logger.Warn("passage still over provider limit at floor chunk size, skipping",
		zap.String("session_id", id),
		zap.Int("passage_len", len(passage)),
	)
	return 1
}

// loadSession resolves a session from cache, falling back to the store
// and rehydrating the cache on a hit.
func (s *Service) loadSession(id string) (*session.Session, error) {
	if sess, ok := s.cache.Get(id); ok {
		return sess, nil
	}

	sess, err := s.store.Load(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}

	s.cache.Put(sess)
	return sess, nil
}

// Query embeds the query text and returns the top-k passages from the
// session's index, joined into a single context string. k defaults to
// DefaultTopK when non-positive.
func (s *Service) Query(ctx context.Context, id, text string, k int) (QueryResult, error) {
	sess, err := s.loadSession(id)
	if err != nil {
		return QueryResult{}, err
	}

	if k <= 0 {
		k = DefaultTopK
	}

	if sess.Index == nil || sess.Index.Len() == 0 {
		return QueryResult{
			Context:        "",
			RelevantChunks: []string{},
			Filename:       sess.Filename,
		}, nil
	}

	hits, err := sess.Index.SearchByText(ctx, s.embedder, text, k)
	if err != nil {
		return QueryResult{}, fmt.Errorf("embedding query for session %s: %w", id, err)
	}

	chunks := make([]string, len(hits))
	for i, hit := range hits {
		chunks[i] = hit.Passage
	}

	return QueryResult{
		Context:        strings.Join(chunks, "\n\n"),
		RelevantChunks: chunks,
		Filename:       sess.Filename,
	}, nil
}

// ListSessions lists persisted sessions from the store.
func (s *Service) ListSessions() ([]session.Info, error) {
	return s.store.List()
}

// DeleteSession removes the session from the cache, the durable store,
// and the shared index. Returns whether anything existed to delete.
func (s *Service) DeleteSession(ctx context.Context, id string) (bool, error) {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	cached := s.cache.Delete(id)

	stored, err := s.store.Delete(id)
	if err != nil {
		return cached || stored, err
	}

	if s.shared != nil {
		if err := s.shared.DeleteSession(ctx, id); err != nil {
			s.logger.Warn("shared index delete failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}

	return cached || stored, nil
}
