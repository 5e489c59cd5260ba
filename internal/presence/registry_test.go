package presence

import (
	"fmt"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

func TestRegistry_AddRemoveGlobal(t *testing.T) {
	r := NewRegistry()
	h := newFakeHandle()

	r.AddGlobal("a", h)
	r.AddGlobal("a", h)
	if r.CountGlobal() != 1 {
		t.Fatalf("expected 1 global subscriber, got %d", r.CountGlobal())
	}

	if !r.RemoveGlobal("a") {
		t.Error("expected first removal to report true")
	}
	if r.RemoveGlobal("a") {
		t.Error("expected second removal to report false")
	}
	if r.CountGlobal() != 0 {
		t.Errorf("expected empty registry, got %d", r.CountGlobal())
	}
}

func TestRegistry_UserKeyPrunedWhenEmpty(t *testing.T) {
	r := NewRegistry()

	r.AddForUser("u1", "s1", newFakeHandle())
	r.AddForUser("u1", "s2", newFakeHandle())
	if r.CountForUser("u1") != 2 {
		t.Fatalf("expected 2, got %d", r.CountForUser("u1"))
	}

	r.RemoveForUser("u1", "s1")
	if !r.HasUser("u1") {
		t.Fatal("user key should remain while a subscriber is left")
	}

	r.RemoveForUser("u1", "s2")
	if r.HasUser("u1") {
		t.Error("user key should be dropped with the last subscriber")
	}
	if _, ok := r.UserCounts()["u1"]; ok {
		t.Error("user counts should not list a pruned user")
	}
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	if r.RemoveForUser("ghost", "s1") {
		t.Error("removing from an unknown user should report false")
	}
	if r.HasUser("ghost") {
		t.Error("removal must not create a user key")
	}
}

func TestRegistry_EntriesAreCopies(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("a", newFakeHandle())

	entries := r.globalEntries()
	r.RemoveGlobal("a")

	if len(entries) != 1 {
		t.Fatalf("expected copied entry to survive removal, got %d", len(entries))
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			r.AddForUser("u1", id, newFakeHandle())
			_ = r.userEntries("u1")
			_ = r.UserCounts()
			r.RemoveForUser("u1", id)
		}(i)
	}
	wg.Wait()

	if r.HasUser("u1") {
		t.Errorf("expected no user key after all removals, counts=%v", r.UserCounts())
	}
}

// Feature: presence-stream, Property 1: Registry Shape
// *For any* sequence of adds and removes, a user key exists exactly when the
// user has at least one subscriber, and counts match a reference model.
func TestProperty1_RegistryShape(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		model := make(map[string]map[string]bool)
		global := make(map[string]bool)

		users := []string{"u1", "u2", "u3"}
		subs := []string{"s1", "s2", "s3", "s4"}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			userID := rapid.SampledFrom(users).Draw(t, "user")
			subID := rapid.SampledFrom(subs).Draw(t, "sub")

			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				r.AddForUser(userID, subID, newFakeHandle())
				if model[userID] == nil {
					model[userID] = make(map[string]bool)
				}
				model[userID][subID] = true
			case 1:
				r.RemoveForUser(userID, subID)
				delete(model[userID], subID)
				if len(model[userID]) == 0 {
					delete(model, userID)
				}
			case 2:
				r.AddGlobal(subID, newFakeHandle())
				global[subID] = true
			case 3:
				r.RemoveGlobal(subID)
				delete(global, subID)
			}
		}

		for _, userID := range users {
			if r.HasUser(userID) != (len(model[userID]) > 0) {
				t.Fatalf("user %s: HasUser=%v, model has %d", userID, r.HasUser(userID), len(model[userID]))
			}
			if r.CountForUser(userID) != len(model[userID]) {
				t.Fatalf("user %s: count=%d, model=%d", userID, r.CountForUser(userID), len(model[userID]))
			}
		}
		for userID, n := range r.UserCounts() {
			if n == 0 {
				t.Fatalf("user %s listed with zero subscribers", userID)
			}
		}
		if r.CountGlobal() != len(global) {
			t.Fatalf("global count=%d, model=%d", r.CountGlobal(), len(global))
		}
	})
}
