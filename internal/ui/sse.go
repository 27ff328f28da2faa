package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/karaoke/internal/tasks"
)

// StreamStatus connects to the service's /status SSE endpoint and forwards
// each decoded event onto updates until the context is cancelled or the
// server closes the stream. The channel is closed when the stream ends.
func StreamStatus(ctx context.Context, baseURL string, updates chan<- tasks.StatusUpdate) error {
	defer close(updates)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to status stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status stream returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var update tasks.StatusUpdate
		if err := json.Unmarshal([]byte(payload), &update); err != nil {
			continue
		}

		select {
		case updates <- update:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("status stream interrupted: %w", err)
	}

	return nil
}
