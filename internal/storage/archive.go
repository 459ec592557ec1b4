package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
)

const payloadContentType = "application/json"

// PayloadArchive stores raw fetch payloads outside the database, keyed by
// namespace and bucket.
type PayloadArchive struct {
	store  ObjectStorage
	prefix string
}

// NewPayloadArchive wraps store; keys are placed under prefix.
func NewPayloadArchive(store ObjectStorage, prefix string) *PayloadArchive {
	return &PayloadArchive{store: store, prefix: prefix}
}

// Put uploads payload and returns the key it was stored under.
func (a *PayloadArchive) Put(ctx context.Context, namespace, bucketKey string, payload []byte) (string, error) {
	key := path.Join(a.prefix, namespace, bucketKey, uuid.NewString()+".json")
	if err := a.store.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), payloadContentType); err != nil {
		return "", fmt.Errorf("failed to archive payload: %w", err)
	}
	return key, nil
}

// Get downloads the payload stored under key.
func (a *PayloadArchive) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := a.store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived payload %s: %w", key, err)
	}
	return b, nil
}
