package connection

import (
	"sync"
	"testing"
)

func TestGlobalSeq(t *testing.T) {
	var g GlobalSeq
	if g.Next() != 1 || g.Next() != 2 {
		t.Fatal("sequence not strictly increasing from 1")
	}

	g.FastForward(10)
	if g.Current() != 10 {
		t.Fatalf("current after fast-forward = %d, want 10", g.Current())
	}
	g.FastForward(5)
	if g.Current() != 10 {
		t.Fatalf("fast-forward went backwards to %d", g.Current())
	}
	if g.Next() != 11 {
		t.Fatal("next after fast-forward should continue from 10")
	}
}

func TestGlobalSeqConcurrent(t *testing.T) {
	var g GlobalSeq
	var wg sync.WaitGroup
	seen := make([]uint32, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = g.Next()
		}(i)
	}
	wg.Wait()

	uniq := make(map[uint32]bool, 100)
	for _, s := range seen {
		if uniq[s] {
			t.Fatalf("duplicate sequence %d", s)
		}
		uniq[s] = true
	}
}

func TestRegistryBindings(t *testing.T) {
	r := NewRegistry()
	a := newConnection(DefaultConfig(), StatefulClient(), Options{})
	b := newConnection(DefaultConfig(), StatefulClient(), Options{})

	r.register("peer1", a)
	if r.Lookup("peer1") != a || r.Len() != 1 {
		t.Fatal("lookup after register failed")
	}

	r.register("peer1", b)
	if r.Lookup("peer1") != b {
		t.Fatal("register did not displace previous binding")
	}

	// unregistering the displaced connection must not remove the
	// current one
	r.unregister("peer1", a)
	if r.Lookup("peer1") != b {
		t.Fatal("stale unregister removed the live binding")
	}
	r.unregister("peer1", b)
	if r.Lookup("peer1") != nil || r.Len() != 0 {
		t.Fatal("unregister left the binding behind")
	}
}

func TestHigherAddressWins(t *testing.T) {
	if !HigherAddressWins("10.0.0.2:6800", "10.0.0.1:6800") {
		t.Fatal("higher address should win")
	}
	if HigherAddressWins("10.0.0.1:6800", "10.0.0.2:6800") {
		t.Fatal("lower address should lose")
	}
}
