package domain

import (
	"context"
	"time"
)

// ContentClient defines the interface for reading and writing the remote
// catalog file. Fetch returns the parsed catalog plus the content's version
// token (the GitHub blob SHA); Write overwrites the file and returns the new
// token. A Write with a stale token fails with ErrWriteConflict.
type ContentClient interface {
	Fetch(ctx context.Context) (*Catalog, string, error)
	Write(ctx context.Context, catalog *Catalog, sha, message string) (string, error)
}

// FlowStore defines the interface for per-session flow state kept between
// requests. Entries expire after their TTL; an expired or absent key reads
// as not found.
type FlowStore interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
}
