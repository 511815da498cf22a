package prefs_test

import (
	"context"
	"testing"

	"github.com/voxcart/voxcart/pkg/prefs"
	"github.com/voxcart/voxcart/pkg/store"
)

func newManager() *prefs.Manager {
	mem := store.NewMemory()
	return prefs.NewManager(mem.AsDurable(), mem, prefs.DefaultManagerConfig())
}

func TestManagerApply(t *testing.T) {
	ctx := context.Background()

	t.Run("merge persists and reloads", func(t *testing.T) {
		m := newManager()

		merged, changed, err := m.Apply(ctx, "u1", &prefs.Preferences{
			Sizes: map[string]string{"Acme": "M"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !changed || merged.Sizes["Acme"] != "M" {
			t.Errorf("unexpected result %+v changed=%v", merged, changed)
		}

		loaded, err := m.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded.Sizes["Acme"] != "M" {
			t.Errorf("reloaded snapshot = %+v", loaded)
		}
	})

	t.Run("unrelated brand does not erase earlier entry", func(t *testing.T) {
		m := newManager()

		m.Apply(ctx, "u1", &prefs.Preferences{Sizes: map[string]string{"Acme": "M"}})
		m.Apply(ctx, "u1", &prefs.Preferences{Sizes: map[string]string{"Levis": "32"}})

		loaded, _ := m.Get(ctx, "u1")
		if loaded.Sizes["Acme"] != "M" || loaded.Sizes["Levis"] != "32" {
			t.Errorf("expected both brands, got %v", loaded.Sizes)
		}
	})

	t.Run("absorbed delta reports no change", func(t *testing.T) {
		m := newManager()
		delta := &prefs.Preferences{Voice: "nova"}

		_, changed, _ := m.Apply(ctx, "u1", delta)
		if !changed {
			t.Error("first apply should change")
		}
		_, changed, _ = m.Apply(ctx, "u1", delta)
		if changed {
			t.Error("second apply should be a no-op")
		}
	})

	t.Run("unknown user yields empty snapshot", func(t *testing.T) {
		m := newManager()
		loaded, err := m.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !loaded.Empty() {
			t.Errorf("expected empty snapshot, got %+v", loaded)
		}
	})
}
