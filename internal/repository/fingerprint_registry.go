package repository

import (
	"context"
	"fmt"
	"time"

	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/pkg/cache"
)

// CacheFingerprintRegistry keeps OPEN fingerprints as cache keys that expire
// with the suppression window. Atomicity comes from the cache's SetNX.
type CacheFingerprintRegistry struct {
	cache cache.Service
}

func NewCacheFingerprintRegistry(c cache.Service) *CacheFingerprintRegistry {
	return &CacheFingerprintRegistry{cache: c}
}

func fingerprintKey(fp string) string { return cache.Key("fp", fp) }

func (r *CacheFingerprintRegistry) Open(ctx context.Context, fingerprint, alertID string, window time.Duration) (bool, error) {
	ok, err := r.cache.SetNX(ctx, fingerprintKey(fingerprint), alertID, window)
	if err != nil {
		return false, fmt.Errorf("open fingerprint %s: %w", fingerprint, err)
	}
	return ok, nil
}

func (r *CacheFingerprintRegistry) Release(ctx context.Context, fingerprint string) error {
	if err := r.cache.Delete(ctx, fingerprintKey(fingerprint)); err != nil {
		return fmt.Errorf("release fingerprint %s: %w", fingerprint, err)
	}
	return nil
}

var _ domrepo.FingerprintRegistry = (*CacheFingerprintRegistry)(nil)
