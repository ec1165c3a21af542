package workflow

import (
	"errors"
	"testing"
)

func TestRunContextTypedAccessors(t *testing.T) {
	rc := NewRunContext()
	rc.Set("name", "ada")
	rc.Set("count", int64(3))
	rc.Set("ready", true)

	t.Run("GetString", func(t *testing.T) {
		s, err := rc.GetString("name")
		if err != nil || s != "ada" {
			t.Errorf("GetString(name) = %q, %v", s, err)
		}

		_, err = rc.GetString("missing")
		var notFound ErrKeyNotFound
		if !errors.As(err, &notFound) {
			t.Errorf("GetString(missing) error = %v, want ErrKeyNotFound", err)
		}

		_, err = rc.GetString("count")
		var badType ErrTypeAssertion
		if !errors.As(err, &badType) {
			t.Errorf("GetString(count) error = %v, want ErrTypeAssertion", err)
		}
	})

	t.Run("GetStringOr", func(t *testing.T) {
		if got := rc.GetStringOr("name", "fallback"); got != "ada" {
			t.Errorf("GetStringOr(name) = %q", got)
		}
		if got := rc.GetStringOr("missing", "fallback"); got != "fallback" {
			t.Errorf("GetStringOr(missing) = %q", got)
		}
	})

	t.Run("GetInt64", func(t *testing.T) {
		n, err := rc.GetInt64("count")
		if err != nil || n != 3 {
			t.Errorf("GetInt64(count) = %d, %v", n, err)
		}

		// JSON round-tripping turns integers into float64
		rc.Set("fromJSON", float64(7))
		n, err = rc.GetInt64("fromJSON")
		if err != nil || n != 7 {
			t.Errorf("GetInt64(fromJSON) = %d, %v", n, err)
		}

		if _, err := rc.GetInt64("name"); err == nil {
			t.Error("GetInt64(name) should fail for a string value")
		}
	})

	t.Run("GetBool", func(t *testing.T) {
		b, err := rc.GetBool("ready")
		if err != nil || !b {
			t.Errorf("GetBool(ready) = %v, %v", b, err)
		}
		if _, err := rc.GetBool("name"); err == nil {
			t.Error("GetBool(name) should fail for a string value")
		}
	})
}

func TestRunContextValuesIsACopy(t *testing.T) {
	rc := NewRunContext()
	rc.Set("k", "v")

	values := rc.Values()
	values["k"] = "changed"
	values["extra"] = true

	if got, _ := rc.Get("k"); got != "v" {
		t.Error("mutating Values() result reached the context")
	}
	if _, ok := rc.Get("extra"); ok {
		t.Error("new keys in Values() result leaked into the context")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	rc := NewRunContext()
	rc.Set("greeting", "hello")
	rc.Set("attempt", 2)
	rc.Set("done", false)

	snapshot, err := rc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored, err := RestoreContext(snapshot)
	if err != nil {
		t.Fatalf("RestoreContext failed: %v", err)
	}

	if got := restored.GetStringOr("greeting", ""); got != "hello" {
		t.Errorf("greeting = %q after round trip", got)
	}
	n, err := restored.GetInt64("attempt")
	if err != nil || n != 2 {
		t.Errorf("attempt = %d, %v after round trip", n, err)
	}
	b, err := restored.GetBool("done")
	if err != nil || b {
		t.Errorf("done = %v, %v after round trip", b, err)
	}
}

func TestRestoreContextEmptySnapshot(t *testing.T) {
	for _, snapshot := range [][]byte{nil, {}} {
		rc, err := RestoreContext(snapshot)
		if err != nil {
			t.Fatalf("RestoreContext(%v) failed: %v", snapshot, err)
		}
		if len(rc.Values()) != 0 {
			t.Errorf("restored context from empty snapshot is not empty: %v", rc.Values())
		}
		// Must still be writable
		rc.Set("k", "v")
	}
}

func TestRestoreContextInvalidSnapshot(t *testing.T) {
	if _, err := RestoreContext([]byte("not json")); err == nil {
		t.Error("RestoreContext should reject malformed snapshots")
	}
}
