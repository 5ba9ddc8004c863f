package sotsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

// pushTimeout bounds a single callback POST.
const pushTimeout = 10 * time.Second

// Payload is the body POSTed to the declaration's callback URL.
type Payload struct {
	InstanceID       string               `json:"instanceId"`
	InstanceType     string               `json:"instanceType"`
	BlueprintVersion string               `json:"blueprintVersion"`
	Profile          *model.ClientProfile `json:"profile"`
	Timestamp        time.Time            `json:"timestamp"`
}

// CallbackError reports a non-2xx response from the SOT callback.
type CallbackError struct {
	StatusCode int
	Body       string
}

func (e *CallbackError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sot callback returned %d", e.StatusCode)
	}
	return fmt.Sprintf("sot callback returned %d: %s", e.StatusCode, e.Body)
}

// push POSTs payload to url. Any 2xx status is success.
func push(ctx context.Context, client *http.Client, url, apiKey string, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &CallbackError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
