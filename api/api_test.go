package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/llm"
	"github.com/papercomputeco/folio/pkg/retrieval"
	"github.com/papercomputeco/folio/pkg/session"
	"github.com/papercomputeco/folio/pkg/vector/sqlitevec"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	return []float32{float32(h.Sum32()%97) + 1, float32(len(text))}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return 2 }
func (stubEmbedder) Close() error    { return nil }

type fakeSearcher struct {
	hits []sqlitevec.Hit
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, _ int) ([]sqlitevec.Hit, error) {
	return f.hits, f.err
}

type fakeChat struct {
	answer string
	err    error
}

func (f *fakeChat) Complete(_ context.Context, _ llm.Request) (string, error) {
	return f.answer, f.err
}

func (f *fakeChat) Stream(_ context.Context, _ llm.Request) (<-chan llm.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	tokens := make(chan llm.Token, 2)
	tokens <- llm.Token{Content: f.answer}
	close(tokens)
	return tokens, nil
}

func (f *fakeChat) Close() error { return nil }

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	req, err := http.NewRequest(method, target, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(resp *http.Response, out any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		server  *Server
		service *retrieval.Service
	)

	BeforeEach(func() {
		logger := zap.NewNop()
		store, err := session.NewStore(GinkgoT().TempDir(), logger)
		Expect(err).NotTo(HaveOccurred())

		service, err = retrieval.NewService(retrieval.Config{ChunkSize: 100}, store, stubEmbedder{}, logger)
		Expect(err).NotTo(HaveOccurred())

		server = NewServer(Config{ListenAddr: ":0"}, service, stubEmbedder{}, logger)
	})

	indexDocument := func(id, filename, text string) *http.Response {
		req := jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/documents", IndexDocumentRequest{
			Filename: filename,
			Text:     text,
		})
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	createSession := func() string {
		req, err := http.NewRequest(http.MethodPost, "/v1/sessions", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var body struct {
			SessionID string `json:"session_id"`
		}
		decodeBody(resp, &body)
		Expect(body.SessionID).NotTo(BeEmpty())
		return body.SessionID
	}

	Describe("GET /ping", func() {
		It("returns pong", func() {
			req, err := http.NewRequest(http.MethodGet, "/ping", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			payload, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(payload)).To(Equal(`"pong"`))
		})
	})

	Describe("POST /v1/sessions/:id/documents", func() {
		It("indexes a document and reports the chunk count", func() {
			id := createSession()
			resp := indexDocument(id, "notes.txt", "some interesting text")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result retrieval.Result
			decodeBody(resp, &result)
			Expect(result.SessionID).To(Equal(id))
			Expect(result.ChunksCount).To(Equal(1))
		})

		It("rejects a missing filename", func() {
			id := createSession()
			req := jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/documents", IndexDocumentRequest{Text: "text"})
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unsupported format", func() {
			id := createSession()
			resp := indexDocument(id, "report.pdf", "%PDF-1.4")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a document with no content", func() {
			id := createSession()
			req := jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/documents", IndexDocumentRequest{Filename: "x.txt"})
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("accepts base64 content", func() {
			id := createSession()
			req := jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/documents", IndexDocumentRequest{
				Filename: "b64.txt",
				Content:  "aGVsbG8gd29ybGQ=",
			})
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /v1/sessions/:id/query", func() {
		It("returns context and chunks for an indexed session", func() {
			id := createSession()
			Expect(indexDocument(id, "notes.txt", "alpha\n\nbravo\n\ncharlie").StatusCode).To(Equal(http.StatusOK))

			req := jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/query", QueryRequest{Query: "alpha", K: 2})
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result retrieval.QueryResult
			decodeBody(resp, &result)
			Expect(result.RelevantChunks).To(HaveLen(2))
			Expect(result.Filename).To(Equal("notes.txt"))
		})

		It("returns 404 for an unknown session", func() {
			req := jsonRequest(http.MethodPost, "/v1/sessions/nope/query", QueryRequest{Query: "q"})
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rejects an empty query", func() {
			id := createSession()
			req := jsonRequest(http.MethodPost, "/v1/sessions/"+id+"/query", QueryRequest{})
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /v1/sessions", func() {
		It("lists indexed sessions with counts", func() {
			id := createSession()
			Expect(indexDocument(id, "notes.txt", "text").StatusCode).To(Equal(http.StatusOK))

			req, err := http.NewRequest(http.MethodGet, "/v1/sessions", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Count    int            `json:"count"`
				Sessions []session.Info `json:"sessions"`
			}
			decodeBody(resp, &body)
			Expect(body.Count).To(Equal(1))
			Expect(body.Sessions[0].SessionID).To(Equal(id))
		})
	})

	Describe("DELETE /v1/sessions/:id", func() {
		It("reports true for an existing session", func() {
			id := createSession()
			Expect(indexDocument(id, "notes.txt", "text").StatusCode).To(Equal(http.StatusOK))

			req, err := http.NewRequest(http.MethodDelete, "/v1/sessions/"+id, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Deleted bool `json:"deleted"`
			}
			decodeBody(resp, &body)
			Expect(body.Deleted).To(BeTrue())
		})

		It("reports false for an unknown session with a 200", func() {
			req, err := http.NewRequest(http.MethodDelete, "/v1/sessions/nope", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Deleted bool `json:"deleted"`
			}
			decodeBody(resp, &body)
			Expect(body.Deleted).To(BeFalse())
		})
	})

	Describe("GET /v1/search", func() {
		It("returns 503 when no shared index is configured", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/search?query=test", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		Context("with a searcher configured", func() {
			BeforeEach(func() {
				searcher := &fakeSearcher{hits: []sqlitevec.Hit{
					{SessionID: "s1", Passage: "a passage", Score: 0.9},
				}}
				server = NewServer(Config{ListenAddr: ":0"}, service, stubEmbedder{}, zap.NewNop(), WithSearcher(searcher))
			})

			It("requires a query parameter", func() {
				req, err := http.NewRequest(http.MethodGet, "/v1/search", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := server.app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})

			It("returns hits from the shared index", func() {
				req, err := http.NewRequest(http.MethodGet, "/v1/search?query=test&top_k=2", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := server.app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					Count   int            `json:"count"`
					Results []SearchResult `json:"results"`
				}
				decodeBody(resp, &body)
				Expect(body.Count).To(Equal(1))
				Expect(body.Results[0].SessionID).To(Equal("s1"))
			})
		})
	})

	Describe("POST /v1/chat", func() {
		It("returns 503 when chat is not configured", func() {
			req := jsonRequest(http.MethodPost, "/v1/chat", ChatRequest{SessionID: "x", Question: "q"})
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		Context("with a chat provider configured", func() {
			BeforeEach(func() {
				server = NewServer(Config{ListenAddr: ":0"}, service, stubEmbedder{}, zap.NewNop(), WithChatProvider(&fakeChat{answer: "grounded answer"}))
			})

			It("returns 404 for an unknown session", func() {
				req := jsonRequest(http.MethodPost, "/v1/chat", ChatRequest{SessionID: "nope", Question: "q"})
				resp, err := server.app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})

			It("answers grounded in the session's document", func() {
				id := createSession()
				Expect(indexDocument(id, "notes.txt", "the sky is blue").StatusCode).To(Equal(http.StatusOK))

				req := jsonRequest(http.MethodPost, "/v1/chat", ChatRequest{SessionID: id, Question: "what color is the sky?"})
				resp, err := server.app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body ChatResponse
				decodeBody(resp, &body)
				Expect(body.Answer).To(Equal("grounded answer"))
				Expect(body.Filename).To(Equal("notes.txt"))
				Expect(body.RelevantChunksUsed).To(Equal(1))
			})

			It("rejects a request without a question", func() {
				req := jsonRequest(http.MethodPost, "/v1/chat", ChatRequest{SessionID: "x"})
				resp, err := server.app.Test(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})
})

var _ = Describe("ErrorResponse", func() {
	It("serializes the error field", func() {
		payload, err := json.Marshal(ErrorResponse{Error: "boom"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(payload)).To(Equal(fmt.Sprintf("{%q:%q}", "error", "boom")))
	})
})
