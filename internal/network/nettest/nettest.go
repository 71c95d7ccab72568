// Package nettest is a shared contract suite for network.Adapter
// implementations; localnet's tests run it.
package nettest

import (
	"context"
	"errors"
	"testing"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// Run exercises the network.Adapter contract against an adapter freshly
// produced by newAdapter for each subtest.
func Run(t *testing.T, newAdapter func() network.Adapter) {
	t.Helper()

	t.Run("GetMissingPad", func(t *testing.T) {
		a := newAdapter()
		var key network.Key
		key[0] = 1
		addr := network.DeriveAddress(key)

		if _, err := a.GetPad(context.Background(), addr); err == nil {
			t.Fatalf("expected error fetching a pad that was never written")
		}
	})

	t.Run("ExistsFalseForUnknownPad", func(t *testing.T) {
		a := newAdapter()
		var key network.Key
		key[0] = 2
		addr := network.DeriveAddress(key)

		exists, err := a.Exists(context.Background(), addr)
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if exists {
			t.Fatalf("expected Exists to report false for an unwritten pad")
		}
	})

	t.Run("CreateThenReadBack", func(t *testing.T) {
		a := newAdapter()
		var key network.Key
		key[0] = 3
		ctx := context.Background()

		addr, err := a.PutPad(ctx, key, []byte("hello"), network.StatusGenerated)
		if err != nil {
			t.Fatalf("PutPad: %v", err)
		}
		got, err := a.GetPad(ctx, addr)
		if err != nil {
			t.Fatalf("GetPad: %v", err)
		}
		if string(got) != "hello" {
			t.Fatalf("expected %q, got %q", "hello", got)
		}
	})

	t.Run("DuplicateCreateIsInconsistentState", func(t *testing.T) {
		a := newAdapter()
		var key network.Key
		key[0] = 4
		ctx := context.Background()

		if _, err := a.PutPad(ctx, key, []byte("a"), network.StatusGenerated); err != nil {
			t.Fatalf("first PutPad: %v", err)
		}
		if _, err := a.PutPad(ctx, key, []byte("b"), network.StatusGenerated); !errors.Is(err, mutanterr.ErrInconsistentState) {
			t.Fatalf("expected ErrInconsistentState, got %v", err)
		}
	})

	t.Run("UpdateOverwritesContent", func(t *testing.T) {
		a := newAdapter()
		var key network.Key
		key[0] = 5
		ctx := context.Background()

		addr, err := a.PutPad(ctx, key, []byte("first"), network.StatusGenerated)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := a.PutPad(ctx, key, []byte("second"), network.StatusWritten); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := a.GetPad(ctx, addr)
		if err != nil {
			t.Fatalf("GetPad: %v", err)
		}
		if string(got) != "second" {
			t.Fatalf("expected %q after update, got %q", "second", got)
		}
	})

	t.Run("DistinctKeysYieldDistinctAddresses", func(t *testing.T) {
		var k1, k2 network.Key
		k1[0], k2[0] = 10, 11
		a1 := network.DeriveAddress(k1)
		a2 := network.DeriveAddress(k2)
		if a1 == a2 {
			t.Fatalf("expected distinct addresses for distinct keys")
		}
	})
}
