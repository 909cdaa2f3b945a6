package notify

import "testing"

func TestPendingSchedulerEarliestWins(t *testing.T) {
	t.Parallel()

	wheel := &fakeTimerWheel{}
	scheduler := NewPendingScheduler(wheel)
	group := &Group{}
	fire := func(NotificationGroupID) {}

	// First add schedules a flush at t=100.
	scheduler.Schedule(1, group, 100, fire)
	if group.PendingFlushTime != 100 {
		t.Fatalf("PendingFlushTime = %v, want 100", group.PendingFlushTime)
	}
	if at, ok := wheel.lastSetAt(1); !ok || at != 100 {
		t.Fatalf("wheel SetAt = %v,%v, want 100,true", at, ok)
	}

	// A later add with a later flush time must not postpone the scheduled flush.
	scheduler.Schedule(1, group, 200, fire)
	if group.PendingFlushTime != 100 {
		t.Errorf("PendingFlushTime after later add = %v, want unchanged 100", group.PendingFlushTime)
	}

	// An earlier add must preempt the currently scheduled flush.
	scheduler.Schedule(1, group, 50, fire)
	if group.PendingFlushTime != 50 {
		t.Errorf("PendingFlushTime after earlier add = %v, want 50", group.PendingFlushTime)
	}
	if at, ok := wheel.lastSetAt(1); !ok || at != 50 {
		t.Errorf("wheel SetAt after preempt = %v,%v, want 50,true", at, ok)
	}
}
