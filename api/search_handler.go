package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SearchResult is one cross-session search hit.
type SearchResult struct {
	SessionID string  `json:"session_id"`
	Passage   string  `json:"passage"`
	Score     float64 `json:"score"`
}

// handleSearch finds the most relevant passages across every session
// via the shared index. Returns 503 when no shared index is configured.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	if s.searcher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "cross-session search is not configured"})
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query parameter required"})
	}
	topK := c.QueryInt("top_k", 5)

	embedding, err := s.embedder.Embed(c.Context(), query)
	if err != nil {
		s.logger.Error("embedding search query failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "failed to embed query"})
	}

	hits, err := s.searcher.Search(c.Context(), embedding, topK)
	if err != nil {
		s.logger.Error("shared index search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "search failed"})
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			SessionID: hit.SessionID,
			Passage:   hit.Passage,
			Score:     hit.Score,
		}
	}

	return c.JSON(fiber.Map{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}
