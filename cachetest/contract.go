package cachetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goforj/refreshcache/cachecore"
)

// Options tunes RunStoreContract for a backend.
type Options struct {
	// CaseName prefixes every key the suite writes. Defaults to t.Name().
	CaseName string
	// NullSemantics expects a store that keeps nothing.
	NullSemantics bool
	// SkipCloneCheck allows Get to return bytes that alias stored data.
	SkipCloneCheck bool
	// TTL is the lifetime given to entries that must expire.
	TTL time.Duration
	// TTLWait bounds how long the suite polls for an expired entry.
	TTLWait time.Duration
	// SkipFlush skips the flush step, for stores shared with other suites.
	SkipFlush bool
}

// Store is the contract exercised by RunStoreContract.
type Store = cachecore.Store

// RunStoreContract checks the behaviour the refresh layer needs from a
// physical store: round trips, TTL expiry, Add as a reacquirable guard,
// namespace-scoped deletes and Flush.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	// Round trip.
	if err := store.Set(ctx, key("alpha"), []byte("value"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok || string(body) != "value" {
			t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
		}
		if !opts.SkipCloneCheck {
			body[0] = 'X'
			body2, ok2, err2 := store.Get(ctx, key("alpha"))
			if err2 != nil || !ok2 || string(body2) != "value" {
				t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
			}
		}
	}

	// TTL expiry.
	if err := store.Set(ctx, key("ttl"), []byte("v"), ttl); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	if err := waitForMiss(ctx, store, key("ttl"), wait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}

	// Add refuses a live key.
	created, err := store.Add(ctx, key("once"), []byte("first"), time.Second)
	if err != nil {
		t.Fatalf("add first failed: created=%v err=%v", created, err)
	}
	created, err = store.Add(ctx, key("once"), []byte("second"), time.Second)
	if err != nil {
		t.Fatalf("add duplicate failed: %v", err)
	}
	if opts.NullSemantics {
		if !created {
			t.Fatalf("expected null-like add duplicate to report created=true")
		}
	} else if created {
		t.Fatalf("expected duplicate add to return created=false")
	}

	// Add reuses a key whose marker expired; refresh guards rely on this.
	if !opts.NullSemantics {
		if created, err := store.Add(ctx, key("guard"), []byte("1"), ttl); err != nil || !created {
			t.Fatalf("guard add failed: created=%v err=%v", created, err)
		}
		if err := waitForMiss(ctx, store, key("guard"), wait); err != nil {
			t.Fatalf("expected guard expiry: %v", err)
		}
		if created, err := store.Add(ctx, key("guard"), []byte("1"), ttl); err != nil || !created {
			t.Fatalf("expected add after expiry to succeed: created=%v err=%v", created, err)
		}
	}

	// Delete.
	if err := store.Set(ctx, key("a"), []byte("1"), time.Second); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := store.Delete(ctx, key("a")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, key("a")); err != nil || ok {
		t.Fatalf("expected key a deleted; ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, key("never-set")); err != nil {
		t.Fatalf("delete of missing key should not fail: %v", err)
	}

	// DeletePrefix removes one namespace and leaves its neighbours alone, even
	// when the prefix holds characters that are wildcards in some backends.
	if !opts.NullSemantics {
		scoped := key("p_%[*]::")
		for _, k := range []string{scoped + "1", scoped + "2", key("pX%[*]::1"), key("p_%[*]:1")} {
			if err := store.Set(ctx, k, []byte("x"), time.Second); err != nil {
				t.Fatalf("set %q failed: %v", k, err)
			}
		}
		if err := store.DeletePrefix(ctx, scoped); err != nil {
			t.Fatalf("delete prefix failed: %v", err)
		}
		for _, k := range []string{scoped + "1", scoped + "2"} {
			if _, ok, err := store.Get(ctx, k); err != nil || ok {
				t.Fatalf("expected %q removed by prefix; ok=%v err=%v", k, ok, err)
			}
		}
		for _, k := range []string{key("pX%[*]::1"), key("p_%[*]:1")} {
			if _, ok, err := store.Get(ctx, k); err != nil || !ok {
				t.Fatalf("expected %q to survive prefix delete; ok=%v err=%v", k, ok, err)
			}
		}
	} else if err := store.DeletePrefix(ctx, key("p")); err != nil {
		t.Fatalf("delete prefix failed: %v", err)
	}

	// Flush.
	if !opts.SkipFlush {
		if err := store.Set(ctx, key("flush"), []byte("x"), time.Second); err != nil {
			t.Fatalf("set flush failed: %v", err)
		}
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, key("flush")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
	}
}

func waitForMiss(ctx context.Context, store Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
