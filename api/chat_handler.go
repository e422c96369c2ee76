package api

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/llm"
	"github.com/papercomputeco/folio/pkg/retrieval"
)

// ChatRequest asks a question against a session's indexed document.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Model     string `json:"model,omitempty"`
	K         int    `json:"k,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// ChatResponse is the non-streaming answer envelope.
type ChatResponse struct {
	Answer             string `json:"answer"`
	SessionID          string `json:"session_id"`
	Filename           string `json:"filename"`
	RelevantChunksUsed int    `json:"relevant_chunks_used"`
}

const chatSystemTemplate = `You are a helpful assistant that answers questions based on the provided context from a document.

Context from the document:
%s

Please answer the question based on the context provided. If the context doesn't contain enough information to answer the question, say so. Keep your answer concise and relevant.`

// handleChat retrieves context for the question and asks the chat
// provider, optionally streaming the answer as plain text.
func (s *Server) handleChat(c *fiber.Ctx) error {
	if s.chat == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "chat is not configured"})
	}

	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.SessionID == "" || req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "session_id and question are required"})
	}

	retrieved, err := s.service.Query(c.Context(), req.SessionID, req.Question, req.K)
	if err != nil {
		if errors.Is(err, retrieval.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
		}
		s.logger.Error("retrieving chat context failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "retrieval failed"})
	}

	llmReq := llm.Request{
		SystemContext: fmt.Sprintf(chatSystemTemplate, retrieved.Context),
		UserMessage:   req.Question,
		Model:         req.Model,
	}

	if req.Stream {
		tokens, err := s.chat.Stream(c.Context(), llmReq)
		if err != nil {
			s.logger.Error("chat stream failed", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "chat provider failed"})
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			for token := range tokens {
				if token.Err != nil {
					s.logger.Warn("chat stream ended abnormally", zap.Error(token.Err))
					return
				}
				if _, err := w.WriteString(token.Content); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}))
		return nil
	}

	answer, err := s.chat.Complete(c.Context(), llmReq)
	if err != nil {
		s.logger.Error("chat completion failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "chat provider failed"})
	}

	return c.JSON(ChatResponse{
		Answer:             answer,
		SessionID:          req.SessionID,
		Filename:           retrieved.Filename,
		RelevantChunksUsed: len(retrieved.RelevantChunks),
	})
}
