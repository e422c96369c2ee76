// Package openai implements the chat provider against an
// OpenAI-compatible chat completions API.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/folio/pkg/llm"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// Config holds chat provider configuration.
type Config struct {
	// APIKey authenticates requests. Optional for local
	// OpenAI-compatible servers.
	APIKey string

	// BaseURL overrides the OpenAI endpoint.
	BaseURL string

	// Model is the default model. Defaults to gpt-4o-mini.
	Model string

	// Timeout bounds non-streaming requests. Defaults to 120s.
	Timeout time.Duration
}

// Provider is the OpenAI-compatible chat client.
type Provider struct {
	apiKey  string
	baseURL string
	model   string

	client *http.Client
	// streamClient has no fixed timeout; streams are bounded by the
	// request context instead.
	streamClient *http.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider creates a chat provider.
func NewProvider(c Config) *Provider {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		apiKey:       c.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *Provider) buildRequest(ctx context.Context, req llm.Request, stream bool) (*http.Request, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemContext != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemContext})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserMessage})

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", llm.ErrChat, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", llm.ErrChat, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return httpReq, nil
}

// Complete returns the full assistant message for one turn.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	httpReq, err := p.buildRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrChat, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", llm.ErrChat, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("%w: parsing response (status %d): %v", llm.ErrChat, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := ""
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("%w: status %d: %s", llm.ErrChat, resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", llm.ErrChat)
	}

	return parsed.Choices[0].Message.Content, nil
}

// Stream returns the assistant message as a token channel. The channel
// closes after the terminal [DONE] event; an abnormal end delivers a
// final token carrying the error.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Token, error) {
	httpReq, err := p.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrChat, err)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", llm.ErrChat, resp.StatusCode, string(payload))
	}

	tokens := make(chan llm.Token)
	go func() {
		defer close(tokens)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				tokens <- llm.Token{Err: fmt.Errorf("%w: parsing stream chunk: %v", llm.ErrChat, err)}
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case tokens <- llm.Token{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			tokens <- llm.Token{Err: fmt.Errorf("%w: reading stream: %v", llm.ErrChat, err)}
		}
	}()

	return tokens, nil
}

// Close is a no-op; the provider holds no persistent connections.
func (p *Provider) Close() error {
	return nil
}
