package notify

import "testing"

func TestIDAllocatorNextIncrementsAndPersists(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	alloc := NewIDAllocator(kv, &fakeSession{bot: false})

	first := alloc.NextNotificationID()
	second := alloc.NextNotificationID()
	if first != 1 || second != 2 {
		t.Fatalf("NextNotificationID() sequence = %d,%d; want 1,2", first, second)
	}

	raw, _ := kv.Get(notificationIDKey)
	if raw != "2" {
		t.Errorf("durable counter = %q, want %q", raw, "2")
	}
}

// TestIDAllocatorColdStart — P7: starting the engine twice with a recorded
// counter value yields current+1 as the next allocation.
func TestIDAllocatorColdStart(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	firstRun := NewIDAllocator(kv, &fakeSession{bot: false})
	for i := 0; i < 5; i++ {
		firstRun.NextNotificationID()
	}

	secondRun := NewIDAllocator(kv, &fakeSession{bot: false})
	next := secondRun.NextNotificationID()
	if next != 6 {
		t.Errorf("NextNotificationID() after cold start = %d, want 6", next)
	}
}

func TestIDAllocatorWrapsAtMaxCounterValue(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	_ = kv.Set(notificationIDKey, "2147483647") // 2^31 - 1
	alloc := NewIDAllocator(kv, &fakeSession{bot: false})

	next := alloc.NextNotificationID()
	if next != 1 {
		t.Errorf("NextNotificationID() after wrap = %d, want 1", next)
	}
}

func TestIDAllocatorBotSessionReturnsSentinel(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	alloc := NewIDAllocator(kv, &fakeSession{bot: true})

	if id := alloc.NextNotificationID(); id != 0 {
		t.Errorf("NextNotificationID() for bot session = %d, want 0", id)
	}
	if id := alloc.NextGroupID(); id != 0 {
		t.Errorf("NextGroupID() for bot session = %d, want 0", id)
	}
	if raw, _ := kv.Get(notificationIDKey); raw != "" {
		t.Errorf("bot session must not persist a counter, got %q", raw)
	}
}

func TestIDAllocatorSeparateNamespaces(t *testing.T) {
	t.Parallel()

	kv := newFakeKV()
	alloc := NewIDAllocator(kv, &fakeSession{bot: false})

	n1 := alloc.NextNotificationID()
	g1 := alloc.NextGroupID()
	n2 := alloc.NextNotificationID()

	if n1 != 1 || n2 != 2 {
		t.Errorf("notification ids = %d,%d; want 1,2 (independent of group counter)", n1, n2)
	}
	if g1 != 1 {
		t.Errorf("group id = %d, want 1", g1)
	}
}
