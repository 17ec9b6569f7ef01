package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status is the last observed state of a dev server.
type Status struct {
	State   string
	Checked time.Time
}

// Poll probes baseURL every interval and reports the result until ctx is
// done. A dev server that answers with JSON may report its own state.
func Poll(ctx context.Context, baseURL string, interval time.Duration, update func(Status)) {
	if baseURL == "" || update == nil {
		return
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	client := &http.Client{
		Timeout: 900 * time.Millisecond,
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		update(Status{
			State:   fetchStatus(ctx, client, baseURL+"/"),
			Checked: time.Now(),
		})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fetchStatus(ctx context.Context, client *http.Client, endpoint string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "error"
	}
	resp, err := client.Do(req)
	if err != nil {
		return "unreachable"
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("http_%d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return "ok"
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "error"
	}
	state, ok := extractState(body)
	if !ok {
		return "ok"
	}
	return state
}

func extractState(payload []byte) (string, bool) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", false
	}
	state := findState(decoded)
	if state == "" {
		return "", false
	}
	return strings.ToLower(state), true
}

func findState(value any) string {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range []string{"state", "status"} {
			if entry, ok := v[key]; ok {
				switch inner := entry.(type) {
				case string:
					return inner
				default:
					if nested := findState(inner); nested != "" {
						return nested
					}
				}
			}
		}
	case []any:
		for _, entry := range v {
			if nested := findState(entry); nested != "" {
				return nested
			}
		}
	}
	return ""
}
