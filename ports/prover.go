package ports

import (
	"context"
)

// ProofVerdict is the only content consumed from the proof backend:
// a boolean plus an opaque certificate reference, never parsed.
type ProofVerdict struct {
	Accepted       bool
	CertificateRef string
	Reason         string
}

// ProofBackendPort submits an instantiated proof statement for mechanical
// checking. Proof search has no guaranteed termination; callers bound each
// attempt with the context deadline.
type ProofBackendPort interface {
	Submit(ctx context.Context, statement string) (*ProofVerdict, error)
}
