package session

import (
	"errors"
	"testing"

	"github.com/linanwx/triptych/provider"
)

func TestManagerConfigureAndActiveOrder(t *testing.T) {
	mgr := NewManager()
	if len(mgr.Active()) != 0 {
		t.Fatalf("new manager should have no sessions")
	}

	for _, slot := range []int{3, 1} {
		if _, err := mgr.Configure(slot, testConfig()); err != nil {
			t.Fatalf("Configure(%d) error = %v", slot, err)
		}
	}

	active := mgr.Active()
	if len(active) != 2 || active[0].Slot() != 1 || active[1].Slot() != 3 {
		t.Fatalf("Active() slots = %v, want [1 3]", slots(active))
	}
	if _, ok := mgr.Get(2); ok {
		t.Fatal("Get(2) should report an empty slot")
	}
	if s, ok := mgr.Get(3); !ok || s.Slot() != 3 {
		t.Fatalf("Get(3) = %v, %v", s, ok)
	}
}

func slots(sessions []*Session) []int {
	out := make([]int, len(sessions))
	for i, s := range sessions {
		out[i] = s.Slot()
	}
	return out
}

func TestManagerSlotRange(t *testing.T) {
	mgr := NewManager()
	for _, slot := range []int{0, 4, -1} {
		if _, err := mgr.Configure(slot, testConfig()); !errors.Is(err, ErrSlotOutOfRange) {
			t.Fatalf("Configure(%d) error = %v, want ErrSlotOutOfRange", slot, err)
		}
		if err := mgr.Remove(slot); !errors.Is(err, ErrSlotOutOfRange) {
			t.Fatalf("Remove(%d) error = %v, want ErrSlotOutOfRange", slot, err)
		}
	}
}

func TestManagerReconfigureResetsLog(t *testing.T) {
	mgr := NewManager()
	first, _ := mgr.Configure(1, testConfig())
	turn, _ := first.BeginTurn(provider.UserMessage("q"))
	turn.Merge("a")
	turn.Complete()

	second, err := mgr.Configure(1, testConfig())
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if second.ID() == first.ID() {
		t.Fatal("reconfigured slot should get a new session id")
	}
	if len(second.Messages()) != 0 {
		t.Fatalf("reconfigured session log = %+v, want empty", second.Messages())
	}
}

func TestManagerBusySlot(t *testing.T) {
	mgr := NewManager()
	s, _ := mgr.Configure(1, testConfig())
	turn, _ := s.BeginTurn(provider.UserMessage("q"))

	if !mgr.InFlight() {
		t.Fatal("InFlight() = false during a turn")
	}
	if _, err := mgr.Configure(1, testConfig()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Configure() during turn error = %v, want ErrBusy", err)
	}
	if err := mgr.Remove(1); !errors.Is(err, ErrBusy) {
		t.Fatalf("Remove() during turn error = %v, want ErrBusy", err)
	}
	if err := mgr.ResetLogs(); !errors.Is(err, ErrBusy) {
		t.Fatalf("ResetLogs() during turn error = %v, want ErrBusy", err)
	}

	turn.Complete()
	if mgr.InFlight() {
		t.Fatal("InFlight() = true after settle")
	}
	if err := mgr.Remove(1); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(mgr.Active()) != 0 {
		t.Fatal("slot 1 should be empty after Remove")
	}
}

func TestManagerSnapshotsAndReset(t *testing.T) {
	mgr := NewManager()
	for slot := 1; slot <= MaxSessions; slot++ {
		s, _ := mgr.Configure(slot, testConfig())
		turn, _ := s.BeginTurn(provider.UserMessage("q"))
		turn.Complete()
	}

	snaps := mgr.Snapshots()
	if len(snaps) != MaxSessions {
		t.Fatalf("Snapshots() = %d, want %d", len(snaps), MaxSessions)
	}
	for i, snap := range snaps {
		if snap.Slot != i+1 || len(snap.Messages) != 1 || snap.Provider != provider.OpenAI {
			t.Fatalf("snapshot %d = %+v", i, snap)
		}
	}

	if err := mgr.ResetLogs(); err != nil {
		t.Fatalf("ResetLogs() error = %v", err)
	}
	for _, snap := range mgr.Snapshots() {
		if len(snap.Messages) != 0 {
			t.Fatalf("slot %d not cleared", snap.Slot)
		}
	}
}
