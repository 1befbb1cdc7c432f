package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Eric-Kumenda/Breast-Cancer/internal/logging"
)

// ObjectStore abstracts the blob storage operations used by the scan flow.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PublicURL(key string) string
	Remove(ctx context.Context, key string) error
}

// SupabaseStore talks to a Supabase Storage bucket over its REST API.
type SupabaseStore struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSupabaseStore builds a store client for the given project URL and bucket.
func NewSupabaseStore(baseURL, bucket, serviceKey string, logger *zap.Logger) *SupabaseStore {
	return &SupabaseStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("object_store"),
	}
}

// Upload writes the object and returns its public URL.
func (s *SupabaseStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", logging.NewOperationError("storage.upload", key, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("storage.upload", key, err)
		s.logger.Error("object upload failed", zap.Error(wrapped), zap.String("key", key))
		return "", wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		wrapped := logging.NewOperationError("storage.upload", key,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		s.logger.Error("object upload rejected", zap.Error(wrapped), zap.String("key", key))
		return "", wrapped
	}

	return s.PublicURL(key), nil
}

// PublicURL returns the public download URL for an object key.
func (s *SupabaseStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

// Remove deletes the object. Deleting a missing object is not an error.
func (s *SupabaseStore) Remove(ctx context.Context, key string) error {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return logging.NewOperationError("storage.remove", key, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("storage.remove", key, err)
		s.logger.Error("object delete failed", zap.Error(wrapped), zap.String("key", key))
		return wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		wrapped := logging.NewOperationError("storage.remove", key,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
		s.logger.Error("object delete rejected", zap.Error(wrapped), zap.String("key", key))
		return wrapped
	}
	return nil
}

// KeyFromURL recovers an object key from a previously issued public URL by
// stripping everything up to the bucket segment and any query suffix. Records
// written before the storage key was persisted alongside the URL rely on this.
func KeyFromURL(url, bucket string) string {
	marker := bucket + "/"
	idx := strings.Index(url, marker)
	if idx < 0 {
		return ""
	}
	key := url[idx+len(marker):]
	if q := strings.IndexByte(key, '?'); q >= 0 {
		key = key[:q]
	}
	return key
}
