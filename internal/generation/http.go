package generation

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

	"github.com/soulkindred/kindred/internal/reliability"
)

// HTTPStrategy forwards requests to a hosted generation endpoint (the
// companion's cloud function).
type HTTPStrategy struct {
	url    string
	client *http.Client
}

func NewHTTPStrategy(url string) *HTTPStrategy {
	return &HTTPStrategy{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *HTTPStrategy) Name() string { return "http" }

func (s *HTTPStrategy) StreamReply(ctx context.Context, req Request, onDelta DeltaHandler) (Reply, error) {
	reply, status, err := s.attempt(ctx, req, onDelta)
	if err == nil {
		return reply, nil
	}
	// One connection-level retry on transient upstream statuses. The turn
	// itself is never re-run; resend is the caller's choice.
	if reliability.IsRetryableHTTPStatus(status) && ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(0, 200*time.Millisecond, time.Second)):
		}
		reply, _, retryErr := s.attempt(ctx, req, onDelta)
		if retryErr == nil {
			return reply, nil
		}
		return Reply{}, fmt.Errorf("generation retry failed: %w (first attempt: %v)", retryErr, err)
	}
	return Reply{}, err
}

func (s *HTTPStrategy) attempt(ctx context.Context, req Request, onDelta DeltaHandler) (Reply, int, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Reply{}, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(httpReq)
	if err != nil {
		return Reply{}, 0, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Reply{}, res.StatusCode, fmt.Errorf("generation http status %d: %s", res.StatusCode, string(body))
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		reply, err := s.consumeStreaming(res.Body, onDelta)
		return reply, res.StatusCode, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Reply{}, res.StatusCode, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return Reply{}, res.StatusCode, fmt.Errorf("generation response was empty")
		}
		if onDelta != nil {
			if err := onDelta(text); err != nil {
				return Reply{}, res.StatusCode, err
			}
		}
		return Reply{Text: text}, res.StatusCode, nil
	}

	text := extractText(obj)
	if text == "" {
		return Reply{}, res.StatusCode, fmt.Errorf("generation response contained no text")
	}
	if onDelta != nil {
		if err := onDelta(text); err != nil {
			return Reply{}, res.StatusCode, err
		}
	}
	return Reply{Text: text}, res.StatusCode, nil
}

func (s *HTTPStrategy) consumeStreaming(body io.Reader, onDelta DeltaHandler) (Reply, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = strings.TrimSpace(extractText(obj))
		}

		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Reply{}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Reply{}, fmt.Errorf("stream read: %w", err)
	}

	return Reply{Text: out.String()}, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
