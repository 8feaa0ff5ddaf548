//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func memcachedForTest(t *testing.T) *MemcachedCache {
	t.Helper()
	addr := os.Getenv("MEMCACHED_ADDRS")
	if addr == "" {
		addr = "localhost:11211"
	}
	c, err := NewMemcachedCache(addr, 500*time.Millisecond, 2, DefaultTTL)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	if err := c.Ping(); err != nil {
		t.Skipf("memcached not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func valkeyForTest(t *testing.T) *ValkeyCache {
	t.Helper()
	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := NewValkeyClient(addr)
	if err != nil {
		t.Skipf("valkey not reachable at %s: %v", addr, err)
	}
	c := NewValkeyCache(client, "weather-it:", DefaultTTL)
	if err := c.Ping(); err != nil {
		_ = c.Close()
		t.Skipf("valkey not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = c.Clear(context.Background())
		_ = c.Close()
	})
	return c
}

func TestIntegration_RemoteBackends(t *testing.T) {
	backends := map[string]func(*testing.T) Cache{
		"memcached": func(t *testing.T) Cache { return memcachedForTest(t) },
		"valkey":    func(t *testing.T) Cache { return valkeyForTest(t) },
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			c := open(t)
			ctx := context.Background()
			now := time.Now()
			key := "it-" + name + "-" + now.Format("150405.000000")

			if err := c.Put(ctx, key, []byte(`{"name":"London"}`), now); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, ok, err := c.Get(ctx, key, now.Add(DefaultTTL))
			if err != nil || !ok {
				t.Fatalf("Get() at TTL = %q, %v, %v; want hit", got, ok, err)
			}
			if string(got) != `{"name":"London"}` {
				t.Errorf("Get() = %q, want stored payload", got)
			}

			valid, err := c.IsValid(ctx, key, now.Add(DefaultTTL+time.Second))
			if err != nil || valid {
				t.Errorf("IsValid() past TTL = %v, %v; want false", valid, err)
			}
			if _, ok, _ := c.Get(ctx, key, now.Add(DefaultTTL+time.Second)); ok {
				t.Error("Get() past TTL hit, want miss")
			}

			if err := c.Put(ctx, key, []byte("x"), now); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := c.Clear(ctx); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if _, ok, _ := c.Get(ctx, key, now); ok {
				t.Error("Get() after Clear hit, want miss")
			}
		})
	}
}
