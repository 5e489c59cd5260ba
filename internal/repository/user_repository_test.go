package repository

import (
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// Feature: presence-store, Property 1: Online Row Conversion
// *For any* set of online rows, the returned ids keep row order and use the
// canonical UUID string form.
func TestProperty1_OnlineRowConversion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "rows")
		rows := make([]OnlineUser, n)
		for i := range rows {
			rows[i] = OnlineUser{ID: uuid.New()}
		}

		ids := onlineIDs(rows)
		if ids == nil {
			t.Fatal("expected non-nil slice")
		}
		if len(ids) != n {
			t.Fatalf("expected %d ids, got %d", n, len(ids))
		}
		for i, id := range ids {
			if id != rows[i].ID.String() {
				t.Fatalf("id %d mismatch: %s vs %s", i, id, rows[i].ID)
			}
			if _, err := uuid.Parse(id); err != nil {
				t.Fatalf("not a UUID: %s", id)
			}
		}
	})
}
