package gcsnet

import (
	"testing"

	"mutant/internal/network"
)

func TestObjectNameWithoutPrefix(t *testing.T) {
	a := &Adapter{bucket: "b"}
	var key network.Key
	key[0] = 7
	addr := network.DeriveAddress(key)

	if got := a.objectName(addr); got != addr.String() {
		t.Fatalf("expected bare address, got %q", got)
	}
}

func TestObjectNameWithPrefix(t *testing.T) {
	a := &Adapter{bucket: "b", prefix: "pads"}
	var key network.Key
	key[0] = 8
	addr := network.DeriveAddress(key)

	want := "pads/" + addr.String()
	if got := a.objectName(addr); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
