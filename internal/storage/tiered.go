package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/rs/zerolog"
)

// TieredStore combines local disk (serving copy) with S3 (durable copy).
// Write path: local first, then S3 (an S3 failure is logged, not returned).
// Read path: local first, S3 fallback with cache-on-read.
type TieredStore struct {
	s3    *S3Store
	local *LocalStore
	log   zerolog.Logger
}

// NewTieredStore creates a tiered local-primary + S3-backup store.
func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		s3:    s3,
		local: local,
		log:   log.With().Str("component", "tiered-store").Logger(),
	}
}

func (s *TieredStore) Save(ctx context.Context, key string, r io.ReadSeeker, ct string) error {
	if err := s.local.Save(ctx, key, r, ct); err != nil {
		return err
	}
	if err := s.s3.Save(ctx, key, r, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("S3 backup write failed, serving from local copy only")
	}
	return nil
}

func (s *TieredStore) LocalPath(key string) string {
	return s.local.LocalPath(key)
}

func (s *TieredStore) URL(ctx context.Context, key string) (string, error) {
	return s.s3.URL(ctx, key)
}

func (s *TieredStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if r, err := s.local.Open(ctx, key); err == nil {
		return r, nil
	}
	r, err := s.s3.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	if cacheErr := s.local.Save(ctx, key, bytes.NewReader(data), ""); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("key", key).Msg("failed to cache S3 file locally")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *TieredStore) Exists(ctx context.Context, key string) bool {
	if s.local.Exists(ctx, key) {
		return true
	}
	return s.s3.Exists(ctx, key)
}

// Delete removes both copies; the S3 error wins when both fail.
func (s *TieredStore) Delete(ctx context.Context, key string) error {
	localErr := s.local.Delete(ctx, key)
	if err := s.s3.Delete(ctx, key); err != nil {
		return err
	}
	return localErr
}

func (s *TieredStore) Type() string { return "tiered" }
