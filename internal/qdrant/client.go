package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Defaults for a local Qdrant.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 6334 // gRPC
	DefaultTimeout = 10 * time.Second

	// CollectionPrefix keeps reelquery collections apart from others on a
	// shared server.
	CollectionPrefix = "reel_"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("qdrant collection is closed")

// Config locates the server and names the endpoint collection on it.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Collection is the unprefixed collection name.
	Collection string

	// VectorSize is the embedding dimension; every upserted description
	// vector must have it.
	VectorSize uint64

	// Timeout bounds each call.
	Timeout time.Duration
}

// Collection is the endpoint description collection on one Qdrant server.
// It is safe for concurrent use.
type Collection struct {
	client  *qdrant.Client
	name    string
	size    uint64
	timeout time.Duration
	closed  atomic.Bool
}

// Open connects lazily to the server in cfg. Use Health to check that it
// is reachable.
func Open(cfg Config) (*Collection, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection name is required")
	}
	if cfg.VectorSize == 0 {
		return nil, errors.New("qdrant: vector size is required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,

		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connecting to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Collection{
		client:  client,
		name:    CollectionPrefix + cfg.Collection,
		size:    cfg.VectorSize,
		timeout: cfg.Timeout,
	}, nil
}

// Name is the collection name as stored on the server.
func (c *Collection) Name() string { return c.name }

// VectorSize is the embedding dimension the collection is created with.
func (c *Collection) VectorSize() uint64 { return c.size }

// Close releases the connection. Later calls fail with ErrClosed.
func (c *Collection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.client.Close()
}

// call bounds ctx by the configured timeout, or fails once closed.
func (c *Collection) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.closed.Load() {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, cancel, nil
}

// Health reports the server version and the state of the endpoint
// collection. A missing collection is not an error; it only means the
// catalog has not been indexed yet.
func (c *Collection) Health(ctx context.Context) (string, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	reply, err := c.client.HealthCheck(ctx)
	if err != nil {
		return "", fmt.Errorf("qdrant health check: %w", err)
	}

	exists, err := c.client.CollectionExists(ctx, c.name)
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", c.name, err)
	}
	if !exists {
		return describeHealth(reply.GetVersion(), nil), nil
	}
	info, err := c.client.GetCollectionInfo(ctx, c.name)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", c.name, err)
	}
	return describeHealth(reply.GetVersion(), toInfo(c.name, info)), nil
}

func describeHealth(version string, info *CollectionInfo) string {
	if info == nil {
		return fmt.Sprintf("qdrant %s, endpoints not indexed", version)
	}
	return fmt.Sprintf("qdrant %s, %s %s with %d endpoints", version, info.Name, info.Status, info.PointsCount)
}
