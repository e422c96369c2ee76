package retrieval_test

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/embeddings"
	"github.com/papercomputeco/folio/pkg/eventstream"
	"github.com/papercomputeco/folio/pkg/retrieval"
	"github.com/papercomputeco/folio/pkg/session"
	"github.com/papercomputeco/folio/pkg/vector"
)

// stubEmbedder produces deterministic vectors and simulates provider
// failures: texts longer than maxLen are rejected as over-limit, and
// specific batch calls can be made to fail outright.
type stubEmbedder struct {
	mu         sync.Mutex
	maxLen     int
	failBatch  map[int]error
	batchCalls int
}

func hashVector(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{
		float32(sum%97) + 1,
		float32(sum%89) + 1,
		float32(len(text)%31) + 1,
	}
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.maxLen > 0 && len(text) > e.maxLen {
		return nil, fmt.Errorf("%w: text too long", embeddings.ErrLimitExceeded)
	}
	return hashVector(text), nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	call := e.batchCalls
	e.batchCalls++
	e.mu.Unlock()

	if err, ok := e.failBatch[call]; ok {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Close() error    { return nil }

// capturePublisher records published document events.
type capturePublisher struct {
	events []*eventstream.DocumentIndexedEvent
}

func (p *capturePublisher) PublishDocumentIndexed(_ context.Context, event *eventstream.DocumentIndexedEvent) error {
	if event == nil {
		return eventstream.ErrNilDocumentEvent
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

// captureShared records shared-index mirroring calls.
type captureShared struct {
	added   map[string][]vector.Entry
	deleted []string
}

func (c *captureShared) Add(_ context.Context, sessionID string, entries []vector.Entry) error {
	if c.added == nil {
		c.added = make(map[string][]vector.Entry)
	}
	c.added[sessionID] = entries
	return nil
}

func (c *captureShared) DeleteSession(_ context.Context, sessionID string) error {
	c.deleted = append(c.deleted, sessionID)
	return nil
}

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		dir      string
		store    *session.Store
		embedder *stubEmbedder
		logger   *zap.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		embedder = &stubEmbedder{}
		logger = zap.NewNop()

		var err error
		store, err = session.NewStore(dir, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	newService := func(cfg retrieval.Config, opts ...retrieval.Option) *retrieval.Service {
		svc, err := retrieval.NewService(cfg, store, embedder, logger, opts...)
		Expect(err).NotTo(HaveOccurred())
		return svc
	}

	Describe("NewService", func() {
		It("rejects invalid chunk parameters before any work starts", func() {
			_, err := retrieval.NewService(retrieval.Config{ChunkSize: 10, ChunkOverlap: 10}, store, embedder, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CreateSession", func() {
		It("returns unique session ids", func() {
			svc := newService(retrieval.Config{})
			Expect(svc.CreateSession()).NotTo(Equal(svc.CreateSession()))
		})
	})

	Describe("ProcessDocument", func() {
		It("rejects a document with no blocks", func() {
			svc := newService(retrieval.Config{})
			id := svc.CreateSession()

			_, err := svc.ProcessDocument(ctx, id, retrieval.Document{Filename: "empty.txt"})
			Expect(err).To(MatchError(retrieval.ErrEmptyDocument))
		})

		It("indexes, persists, and reports the chunk count", func() {
			svc := newService(retrieval.Config{ChunkSize: 10, ChunkOverlap: 2})
			id := svc.CreateSession()

			result, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "notes.txt",
				Blocks:   []string{"a short block", "another short block"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.SessionID).To(Equal(id))
			Expect(result.Filename).To(Equal("notes.txt"))
			Expect(result.ChunksCount).To(BeNumerically(">", 0))

			loaded, err := store.Load(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Index.Len()).To(Equal(result.ChunksCount))
			Expect(loaded.Filename).To(Equal("notes.txt"))
		})

		It("replaces the previous document wholesale", func() {
			svc := newService(retrieval.Config{ChunkSize: 100})
			id := svc.CreateSession()

			_, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "first.txt",
				Blocks:   []string{"first document text"},
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "second.txt",
				Blocks:   []string{"second document text"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ChunksCount).To(Equal(1))

			query, err := svc.Query(ctx, id, "text", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(query.Filename).To(Equal("second.txt"))
			Expect(query.RelevantChunks).To(HaveLen(1))
			Expect(query.RelevantChunks[0]).To(ContainSubstring("second"))
		})

		It("honors per-document chunk parameters", func() {
			svc := newService(retrieval.Config{ChunkSize: 1000, ChunkOverlap: 200})
			id := svc.CreateSession()

			result, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename:     "tuned.txt",
				Blocks:       []string{"ABCDEFGHIJ"},
				ChunkSize:    4,
				ChunkOverlap: 2,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ChunksCount).To(Equal(4))
		})

		It("contains a non-limit batch failure and indexes the rest", func() {
			embedder.failBatch = map[int]error{
				1: fmt.Errorf("%w: upstream 500", embeddings.ErrProvider),
			}
			svc := newService(retrieval.Config{ChunkSize: 100, BatchSize: 2})
			id := svc.CreateSession()

			blocks := []string{"block one", "block two", "block three", "block four", "block five", "block six"}
			result, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "partial.txt",
				Blocks:   blocks,
			})
			Expect(err).NotTo(HaveOccurred())
			// Batch 1 (passages 3 and 4) is skipped, the rest survive.
			Expect(result.ChunksCount).To(Equal(4))
		})

		It("recovers an over-limit batch by re-chunking at halved sizes", func() {
			embedder.maxLen = 120
			svc := newService(retrieval.Config{ChunkSize: 400, ChunkOverlap: 0})
			id := svc.CreateSession()

			long := strings.Repeat("lorem ipsum ", 30) // ~360 chars, over the provider limit
			result, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "long.txt",
				Blocks:   []string{long},
			})
			Expect(err).NotTo(HaveOccurred())
			// Recovered sub-passages all fit within the provider limit.
			Expect(result.ChunksCount).To(BeNumerically(">", 1))

			query, err := svc.Query(ctx, id, "lorem", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(query.RelevantChunks[0])).To(BeNumerically("<=", 120))
		})

		It("fails with ErrIndexingFailed only when nothing is indexed", func() {
			embedder.failBatch = map[int]error{
				0: fmt.Errorf("%w: upstream 500", embeddings.ErrProvider),
			}
			svc := newService(retrieval.Config{ChunkSize: 100})
			id := svc.CreateSession()

			_, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "doomed.txt",
				Blocks:   []string{"some text"},
			})
			Expect(err).To(MatchError(retrieval.ErrIndexingFailed))

			_, err = store.Load(id)
			Expect(err).To(MatchError(session.ErrNotFound))
		})

		It("mirrors passages into the shared index and publishes an event", func() {
			shared := &captureShared{}
			publisher := &capturePublisher{}
			svc := newService(retrieval.Config{ChunkSize: 100},
				retrieval.WithSharedIndex(shared),
				retrieval.WithPublisher(publisher),
			)
			id := svc.CreateSession()

			result, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "notes.txt",
				Blocks:   []string{"hello world"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(shared.added).To(HaveKey(id))
			Expect(shared.added[id]).To(HaveLen(result.ChunksCount))

			Expect(publisher.events).To(HaveLen(1))
			event := publisher.events[0]
			Expect(event.EventType).To(Equal(eventstream.EventTypeDocumentIndexed))
			Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
			Expect(event.SessionID).To(Equal(id))
			Expect(event.ChunksCount).To(Equal(result.ChunksCount))
			Expect(event.EventID).NotTo(BeEmpty())
		})
	})

	Describe("Query", func() {
		It("fails with ErrSessionNotFound for an unknown session", func() {
			svc := newService(retrieval.Config{})
			_, err := svc.Query(ctx, "no-such-session", "question", 3)
			Expect(err).To(MatchError(retrieval.ErrSessionNotFound))
		})

		It("returns an empty result for a session with no indexed passages", func() {
			svc := newService(retrieval.Config{})
			id := svc.CreateSession()

			result, err := svc.Query(ctx, id, "question", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Context).To(BeEmpty())
			Expect(result.RelevantChunks).To(BeEmpty())
			Expect(result.RelevantChunks).NotTo(BeNil())
		})

		It("joins the top passages with a blank line", func() {
			svc := newService(retrieval.Config{ChunkSize: 100})
			id := svc.CreateSession()

			_, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "notes.txt",
				Blocks:   []string{"alpha", "bravo", "charlie"},
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := svc.Query(ctx, id, "alpha", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RelevantChunks).To(HaveLen(2))
			Expect(result.Context).To(Equal(strings.Join(result.RelevantChunks, "\n\n")))
			Expect(result.Filename).To(Equal("notes.txt"))
		})

		It("rehydrates a session from the store after a restart", func() {
			svc := newService(retrieval.Config{ChunkSize: 100})
			id := svc.CreateSession()

			_, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "notes.txt",
				Blocks:   []string{"persistent text"},
			})
			Expect(err).NotTo(HaveOccurred())

			// A fresh service over the same store simulates a new process.
			restarted := newService(retrieval.Config{ChunkSize: 100})
			result, err := restarted.Query(ctx, id, "persistent", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RelevantChunks).To(HaveLen(1))
			Expect(result.Filename).To(Equal("notes.txt"))
		})
	})

	Describe("ListSessions", func() {
		It("lists persisted sessions", func() {
			svc := newService(retrieval.Config{ChunkSize: 100})
			id := svc.CreateSession()

			_, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "notes.txt",
				Blocks:   []string{"hello"},
			})
			Expect(err).NotTo(HaveOccurred())

			infos, err := svc.ListSessions()
			Expect(err).NotTo(HaveOccurred())
			Expect(infos).To(HaveLen(1))
			Expect(infos[0].SessionID).To(Equal(id))
		})
	})

	Describe("DeleteSession", func() {
		It("returns false for an unknown id without raising", func() {
			svc := newService(retrieval.Config{})
			existed, err := svc.DeleteSession(ctx, "no-such-session")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
		})

		It("removes the session everywhere", func() {
			shared := &captureShared{}
			svc := newService(retrieval.Config{ChunkSize: 100}, retrieval.WithSharedIndex(shared))
			id := svc.CreateSession()

			_, err := svc.ProcessDocument(ctx, id, retrieval.Document{
				Filename: "notes.txt",
				Blocks:   []string{"hello"},
			})
			Expect(err).NotTo(HaveOccurred())

			existed, err := svc.DeleteSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())
			Expect(shared.deleted).To(ContainElement(id))

			_, err = svc.Query(ctx, id, "hello", 1)
			Expect(err).To(MatchError(retrieval.ErrSessionNotFound))
		})
	})
})
