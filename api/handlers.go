package api

import (
	"encoding/base64"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/extract"
	"github.com/papercomputeco/folio/pkg/retrieval"
)

// IndexDocumentRequest is the upload body. Content carries the raw
// document base64-encoded; Text carries it as a plain string. Exactly
// one should be set; Content wins when both are.
type IndexDocumentRequest struct {
	Filename     string `json:"filename"`
	Content      string `json:"content,omitempty"`
	Text         string `json:"text,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

// QueryRequest is the query body for a session.
type QueryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleCreateSession allocates a new empty session.
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	id := s.service.CreateSession()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": id,
	})
}

// handleListSessions lists persisted sessions.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	infos, err := s.service.ListSessions()
	if err != nil {
		s.logger.Error("listing sessions failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list sessions"})
	}

	return c.JSON(fiber.Map{
		"count":    len(infos),
		"sessions": infos,
	})
}

// handleDeleteSession removes a session. Deleting an unknown id is not
// an error; the response reports whether anything existed.
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")

	deleted, err := s.service.DeleteSession(c.Context(), id)
	if err != nil {
		s.logger.Error("deleting session failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete session"})
	}

	return c.JSON(fiber.Map{
		"deleted": deleted,
	})
}

// handleIndexDocument extracts, chunks, embeds, and indexes an uploaded
// document into the session.
func (s *Server) handleIndexDocument(c *fiber.Ctx) error {
	id := c.Params("id")

	var req IndexDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "filename is required"})
	}

	var data []byte
	switch {
	case req.Content != "":
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is not valid base64"})
		}
		data = decoded
	case req.Text != "":
		data = []byte(req.Text)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content or text is required"})
	}

	blocks, err := extract.Extract(req.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unsupported document format"})
		case errors.Is(err, extract.ErrExtractionFailed):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "document could not be decoded"})
		default:
			s.logger.Error("extraction failed",
				zap.String("filename", req.Filename),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "extraction failed"})
		}
	}

	result, err := s.service.ProcessDocument(c.Context(), id, retrieval.Document{
		Filename:     req.Filename,
		Blocks:       blocks,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrEmptyDocument):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "document contains no text"})
		case errors.Is(err, retrieval.ErrIndexingFailed):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: "no passages could be indexed"})
		default:
			s.logger.Error("indexing failed",
				zap.String("session_id", id),
				zap.String("filename", req.Filename),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "indexing failed"})
		}
	}

	return c.JSON(result)
}

// handleQuery retrieves the most relevant passages for a question.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	id := c.Params("id")

	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query is required"})
	}

	result, err := s.service.Query(c.Context(), id, req.Query, req.K)
	if err != nil {
		if errors.Is(err, retrieval.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
		}
		s.logger.Error("query failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "query failed"})
	}

	return c.JSON(result)
}
