package domain

import (
	"context"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// ObjectStore abstracts the blob store used for resumes and generated
// documents. Get returns ErrNotFound when the key does not exist.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// PrepDocument is the metadata of one generated interview prep document.
// Documents are immutable after creation; regeneration writes a new object
// under a new content-derived name.
type PrepDocument struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}
