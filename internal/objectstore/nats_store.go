// Package objectstore provides a NATS-based implementation of the ObjectStore
// interface, including presigned download links served through the service's
// own download route.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linyqh/edge-tts-service/internal/core"
)

// NatsObjectStore implements core.ObjectStore using NATS JetStream. Buckets
// are created on first use and cached for the life of the store.
type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext
	signer           *Signer

	mu      sync.Mutex
	buckets map[string]nats.ObjectStore
}

// New creates a NatsObjectStore. The signer produces presigned download URLs
// for stored objects.
func New(jetstreamContext nats.JetStreamContext, signer *Signer) *NatsObjectStore {
	return &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		signer:           signer,
		buckets:          make(map[string]nats.ObjectStore),
	}
}

// bucket returns the object store for the named bucket, creating it when it
// does not exist yet.
func (n *NatsObjectStore) bucket(bucketName string) (nats.ObjectStore, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if store, ok := n.buckets[bucketName]; ok {
		return store, nil
	}

	// Use a "create-first" approach.
	store, err := n.jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Audio artifacts for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = n.jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
	}

	n.buckets[bucketName] = store

	return store, nil
}

// Upload saves an object to the named bucket.
func (n *NatsObjectStore) Upload(_ context.Context, bucketName, key string, data []byte) error {
	store, err := n.bucket(bucketName)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrUpload, err)
	}

	reader := bytes.NewReader(data)

	_, err = store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, reader)
	if err != nil {
		return fmt.Errorf("%w: put object '%s' to bucket '%s': %w", core.ErrUpload, key, bucketName, err)
	}

	return nil
}

// Download retrieves an object from the named bucket.
func (n *NatsObjectStore) Download(_ context.Context, bucketName, key string) ([]byte, error) {
	store, err := n.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	obj, err := store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", core.ErrObjectNotFound, key, bucketName)
		}

		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, bucketName, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// PresignedGetURL returns a time-limited, credential-free download link for a
// stored object.
func (n *NatsObjectStore) PresignedGetURL(bucketName, key string, ttl time.Duration) (string, error) {
	return n.signer.PresignedGetURL(bucketName, key, ttl)
}
