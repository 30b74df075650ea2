package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"godisc/domain/core"
	"godisc/ports"
)

// HTTPBackend submits proof obligations to an external verification
// service over HTTP. Transport failures and 5xx responses are reported as
// backend errors so the gate can retry; a well-formed rejection is final.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a proof backend client for the given base URL
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Statement string `json:"statement"`
}

type submitResponse struct {
	Accepted       bool   `json:"accepted"`
	CertificateRef string `json:"certificate_ref,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Submit posts one statement and decodes the verdict
func (b *HTTPBackend) Submit(ctx context.Context, statement string) (*ports.ProofVerdict, error) {
	payload, err := json.Marshal(submitRequest{Statement: statement})
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: backend returned %d", core.ErrBackendUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode verdict: %v", core.ErrBackendUnavailable, err)
	}
	return &ports.ProofVerdict{
		Accepted:       decoded.Accepted,
		CertificateRef: decoded.CertificateRef,
		Reason:         decoded.Reason,
	}, nil
}
