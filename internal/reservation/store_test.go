package reservation

import (
	"testing"
	"time"

	"github.com/bkoehler/tgtg-notify/internal/models"
)

type stubHandle struct {
	stopped int
}

func (h *stubHandle) Stop() bool {
	h.stopped++
	return h.stopped == 1
}

func TestStore_PutRemove(t *testing.T) {
	s := NewStore()
	handle := &stubHandle{}
	res := models.Reservation{OrderID: "order-1", StoreName: "Bakery"}

	s.Put("order-1", res, handle)
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	got, ok := s.Remove("order-1")
	if !ok {
		t.Fatal("Remove reported not found for a present entry")
	}
	if got.StoreName != "Bakery" {
		t.Errorf("removed reservation = %+v", got)
	}
	if handle.stopped != 1 {
		t.Errorf("handle stopped %d times, want 1", handle.stopped)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d after remove, want 0", s.Len())
	}
}

func TestStore_RemoveUnknown(t *testing.T) {
	s := NewStore()
	if _, ok := s.Remove("nope"); ok {
		t.Error("Remove of unknown order reported found")
	}
}

func TestStore_RemoveIsExactlyOnce(t *testing.T) {
	s := NewStore()
	s.Put("order-1", models.Reservation{OrderID: "order-1"}, &stubHandle{})

	_, first := s.Remove("order-1")
	_, second := s.Remove("order-1")
	if !first || second {
		t.Errorf("first=%v second=%v, want exactly one winner", first, second)
	}
}

func TestStore_PutOverwriteStopsPriorHandle(t *testing.T) {
	s := NewStore()
	old := &stubHandle{}
	s.Put("order-1", models.Reservation{OrderID: "order-1"}, old)
	s.Put("order-1", models.Reservation{OrderID: "order-1"}, &stubHandle{})

	if old.stopped != 1 {
		t.Errorf("prior handle stopped %d times, want 1", old.stopped)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Put("order-1", models.Reservation{OrderID: "order-1", AutoCancelAt: time.Now()}, &stubHandle{})

	snap := s.Snapshot()
	delete(snap, "order-1")

	if s.Len() != 1 {
		t.Error("mutating a snapshot affected the store")
	}
}
