// Package ollama is the client for the local model server. It speaks the
// streaming chat protocol on loopback (POST /api/chat with line-delimited
// JSON deltas), enumerates installed models via GET /api/tags, and downloads
// models via POST /api/pull.
package ollama

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

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

const defaultEndpoint = "http://127.0.0.1:11434"

// maxTransportRetries bounds reconnect attempts before surfacing ErrTransport.
const maxTransportRetries = 3

// Client talks to a local Ollama-compatible model server.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a client for the given endpoint. An empty endpoint uses
// the loopback default.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		// No hard timeout: chat streams are long-lived and cancellable
		// through the request context.
		client: &http.Client{},
	}
}

// Options are per-call sampling and context-window settings.
type Options struct {
	Temperature float64
	NumCtx      int
	// StripReasoning removes <think>...</think> spans from the stream
	// before tokens reach the caller.
	StripReasoning bool
}

// Result is the outcome of a chat call. Text is the concatenation of all
// delivered tokens; Interrupted marks a stream cut short by cancellation.
type Result struct {
	Text        string
	Interrupted bool
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  chatOptions     `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Chat streams a completion. Tokens are forwarded to onToken in the order the
// model produced them; the returned Result.Text is their concatenation.
// On cancellation the partial text accumulated so far is returned alongside
// ErrCancelled with Interrupted set.
func (c *Client) Chat(ctx context.Context, model string, messages []types.Message, opts Options, onToken func(string)) (Result, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "Chat("+model+")")
	defer timer.Stop()

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		Options:  chatOptions{Temperature: opts.Temperature, NumCtx: opts.NumCtx},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat request: %w", err)
	}

	resp, err := c.postWithRetry(ctx, "/api/chat", body)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		msg, _ := io.ReadAll(resp.Body)
		logging.APIError("model %s missing: %s", model, msg)
		return Result{}, fmt.Errorf("%w: %s", types.ErrModelMissing, model)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("%w: status %d: %s", types.ErrTransport, resp.StatusCode, msg)
	}

	var final strings.Builder
	filter := newThinkFilter(opts.StripReasoning)
	emit := func(text string) {
		if text == "" {
			return
		}
		final.WriteString(text)
		if onToken != nil {
			onToken(text)
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			emit(filter.Flush())
			logging.API("chat interrupted after %d bytes", final.Len())
			return Result{Text: final.String(), Interrupted: true},
				fmt.Errorf("%w: chat stream interrupted", types.ErrCancelled)
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			logging.APIDebug("skipping malformed delta: %v", err)
			continue
		}
		if chunk.Error != "" {
			if strings.Contains(chunk.Error, "not found") {
				return Result{}, fmt.Errorf("%w: %s", types.ErrModelMissing, chunk.Error)
			}
			return Result{}, fmt.Errorf("%w: %s", types.ErrTransport, chunk.Error)
		}
		logging.APIDebug("raw delta: %q", chunk.Message.Content)
		emit(filter.Feed(chunk.Message.Content))
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		emit(filter.Flush())
		if ctx.Err() != nil {
			return Result{Text: final.String(), Interrupted: true},
				fmt.Errorf("%w: chat stream interrupted", types.ErrCancelled)
		}
		return Result{Text: final.String(), Interrupted: true},
			fmt.Errorf("%w: stream read: %v", types.ErrTransport, err)
	}

	emit(filter.Flush())
	return Result{Text: final.String()}, nil
}

// postWithRetry POSTs with exponential backoff on transport failures.
func (c *Client) postWithRetry(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransportRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500<<uint(attempt-1)) * time.Millisecond
			logging.APIDebug("retrying %s in %v (attempt %d)", path, backoff, attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", types.ErrCancelled, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCancelled, ctx.Err())
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", types.ErrTransport, lastErr)
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Tags returns the exact names of installed models, including quantization
// tags.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tags status %d", types.ErrTransport, resp.StatusCode)
	}

	var tr tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tr.Models))
	for _, m := range tr.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// PullProgress is one progress delta from a model download.
type PullProgress struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// Pull downloads a model, streaming byte-accurate progress to onProgress.
func (c *Client) Pull(ctx context.Context, name string, onProgress func(PullProgress)) error {
	body, err := json.Marshal(map[string]any{"name": name, "stream": true})
	if err != nil {
		return fmt.Errorf("marshal pull request: %w", err)
	}
	resp, err := c.postWithRetry(ctx, "/api/pull", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: pull status %d: %s", types.ErrTransport, resp.StatusCode, msg)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: pull interrupted", types.ErrCancelled)
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p PullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			continue
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
	return scanner.Err()
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	resp, err := c.postWithRetry(ctx, "/api/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", types.ErrModelMissing, model)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: embeddings status %d: %s", types.ErrTransport, resp.StatusCode, msg)
	}
	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return er.Embedding, nil
}
