package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPBridge implements Confidential against an external confidential-token
// bridge service.
type HTTPBridge struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBridge creates a bridge client for the given base URL.
func NewHTTPBridge(baseURL string) *HTTPBridge {
	return &HTTPBridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *HTTPBridge) Supported(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (b *HTTPBridge) TransferIn(ctx context.Context, owner, handle string) error {
	return b.post(ctx, "/v1/transfers/in", map[string]string{
		"owner":  owner,
		"handle": handle,
	})
}

func (b *HTTPBridge) TransferOut(ctx context.Context, recipient, handle string) error {
	return b.post(ctx, "/v1/transfers/out", map[string]string{
		"recipient": recipient,
		"handle":    handle,
	})
}

func (b *HTTPBridge) post(ctx context.Context, path string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal bridge request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrUnknownHandle
	case http.StatusForbidden:
		return ErrHandleNotOwned
	default:
		return fmt.Errorf("%w: bridge returned %d", ErrTransferFailed, resp.StatusCode)
	}
}
