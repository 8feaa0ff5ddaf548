package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyCache implements Cache on a Valkey (Redis-compatible) server using the
// same envelope format as MemcachedCache. Keys live under a prefix so Clear only
// removes this cache's entries.
type ValkeyCache struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyClient dials a Valkey client for the comma-separated addrs.
func NewValkeyClient(addrs string) (valkey.Client, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:6379"}
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: servers})
	if err != nil {
		return nil, fmt.Errorf("valkey client: %w", err)
	}
	return client, nil
}

// NewValkeyCache constructs a cache backed by client.
func NewValkeyCache(client valkey.Client, prefix string, ttl time.Duration) *ValkeyCache {
	if prefix == "" {
		prefix = strings.TrimSuffix(keyPrefix, ":")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ValkeyCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ValkeyCache) key(k string) string {
	return c.prefix + ":" + k
}

// Put implements Cache.Put.
func (c *ValkeyCache) Put(ctx context.Context, key string, value []byte, now time.Time) error {
	raw, err := json.Marshal(Entry{Payload: value, InsertedAt: now})
	if err != nil {
		return err
	}
	ttl := c.ttl
	if ttl < time.Second {
		ttl = time.Second
	}
	cmd := c.client.B().Set().Key(c.key(key)).Value(string(raw)).Ex(ttl).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Get implements Cache.Get.
func (c *ValkeyCache) Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	entry, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if expired(entry.InsertedAt, now, c.ttl) {
		if err := c.client.Do(ctx, c.client.B().Del().Key(c.key(key)).Build()).Error(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// IsValid implements Cache.IsValid.
func (c *ValkeyCache) IsValid(ctx context.Context, key string, now time.Time) (bool, error) {
	entry, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return !expired(entry.InsertedAt, now, c.ttl), nil
}

func (c *ValkeyCache) load(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Clear deletes every key under the prefix.
func (c *ValkeyCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		scan, err := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(c.prefix+":*").Count(100).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("scan %s: %w", c.prefix, err)
		}
		if len(scan.Elements) > 0 {
			if err := c.client.Do(ctx, c.client.B().Del().Key(scan.Elements...).Build()).Error(); err != nil {
				return fmt.Errorf("delete %d keys: %w", len(scan.Elements), err)
			}
		}
		cursor = scan.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks if the server is reachable. Used for health checks.
func (c *ValkeyCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close closes the client.
func (c *ValkeyCache) Close() error {
	c.client.Close()
	return nil
}

var _ Cache = (*ValkeyCache)(nil)
