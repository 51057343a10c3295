package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Simulator stands in for the archive bucket when no endpoint is configured.
// It returns deterministic keys without storing anything.
type Simulator struct {
	bucket   string
	endpoint string
}

func NewSimulator(bucket, endpoint string) *Simulator {
	return &Simulator{
		bucket:   strings.TrimSpace(bucket),
		endpoint: strings.TrimSpace(endpoint),
	}
}

func (r *Simulator) StoreBatch(_ context.Context, accountID, key string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty batch")
	}

	sum := sha256.Sum256([]byte(accountID + ":" + key))
	digest := hex.EncodeToString(sum[:])

	ep := r.endpoint
	if ep == "" {
		ep = "https://archive.example.invalid"
	}
	bucket := r.bucket
	if bucket == "" {
		bucket = "timeline-archive"
	}

	return fmt.Sprintf("%s/%s/batches/%s.json", strings.TrimRight(ep, "/"), bucket, digest), nil
}
