package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPApprover checks approvals against an external multisig service.
type HTTPApprover struct {
	baseURL string
	client  *http.Client
}

// NewHTTPApprover creates an approver client for the given base URL.
func NewHTTPApprover(baseURL string) *HTTPApprover {
	return &HTTPApprover{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *HTTPApprover) Approved(ctx context.Context, approvalID, amt string) (bool, error) {
	u := fmt.Sprintf("%s/v1/approvals/%s?amount=%s", a.baseURL, url.PathEscape(approvalID), url.QueryEscape(amt))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("build approval request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("query approval: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("approval service returned %d", resp.StatusCode)
	}

	var body struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode approval response: %w", err)
	}
	return body.Approved, nil
}
