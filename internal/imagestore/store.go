package imagestore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	// Frame decoders. The coordinator serves PNG; JPEG is accepted for
	// manually uploaded images.
	_ "image/jpeg"
	_ "image/png"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentFetches bounds parallel object downloads.
const maxConcurrentFetches = 2

// ErrNotConfigured is returned by Fetch before credentials have been
// received from the coordinator.
var ErrNotConfigured = errors.New("image store not configured")

// Credentials are the object-store settings delivered by the
// registration acknowledgment.
type Credentials struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Store is an object-store backed image source.
//
// Thread Safety: all methods are safe for concurrent use. Configure may
// race with Fetch; an in-flight fetch completes against the client it
// started with.
type Store struct {
	mu     sync.RWMutex
	client *minio.Client
	bucket string

	sem *semaphore.Weighted
}

// New creates an unconfigured store.
func New() *Store {
	return &Store{sem: semaphore.NewWeighted(maxConcurrentFetches)}
}

// Configure builds the object-store client from credentials.
//
// The call is idempotent: reconfiguring with the same or new
// credentials simply replaces the client, so duplicate registration
// acknowledgments are harmless.
//
// Parameters:
//   - creds: Endpoint, bucket, and access credentials
//
// Returns:
//   - error: If the endpoint cannot be parsed
func (s *Store) Configure(creds Credentials) error {
	client, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: creds.Secure,
	})
	if err != nil {
		return fmt.Errorf("creating object store client: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.bucket = creds.Bucket
	s.mu.Unlock()
	return nil
}

// Configured reports whether credentials have been applied.
func (s *Store) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Fetch downloads and decodes the image at the given object path.
//
// Parameters:
//   - ctx: Context for cancellation
//   - path: Object key within the configured bucket
//
// Returns:
//   - image.Image: Decoded frame
//   - error: ErrNotConfigured, or a download/decode failure
func (s *Store) Fetch(ctx context.Context, path string) (image.Image, error) {
	s.mu.RLock()
	client := s.client
	bucket := s.bucket
	s.mu.RUnlock()

	if client == nil {
		return nil, ErrNotConfigured
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for fetch slot: %w", err)
	}
	defer s.sem.Release(1)

	obj, err := client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching object %q: %w", path, err)
	}
	defer obj.Close()

	img, err := decodeImage(obj)
	if err != nil {
		return nil, fmt.Errorf("decoding object %q: %w", path, err)
	}
	return img, nil
}

// decodeImage decodes a frame using the registered format decoders.
func decodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}
