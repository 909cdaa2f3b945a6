package notify

import "testing"

func TestGroupStoreInsertLookupRemove(t *testing.T) {
	t.Parallel()

	s := NewGroupStore()
	dialog := DialogID{Kind: DialogUser, ID: 10}

	gA, keyA := s.GetOrCreate(1, dialog)
	gA.Notifications = append(gA.Notifications, Notification{ID: 100})
	keyA.LastNotificationDate = 5
	s.Remove(GroupKey{GroupID: 1, DialogID: dialog, LastNotificationDate: 0})
	s.Insert(keyA, gA)

	gB, keyB := s.GetOrCreate(2, dialog)
	keyB.LastNotificationDate = 8
	s.Remove(GroupKey{GroupID: 2, DialogID: dialog, LastNotificationDate: 0})
	s.Insert(keyB, gB)

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	got, key, ok := s.Lookup(1)
	if !ok || got != gA || key != keyA {
		t.Errorf("Lookup(1) = %v,%v,%v; want %v,%v,true", got, key, ok, gA, keyA)
	}

	// B has a more recent date, so it must be visible first (index 0).
	visible := s.VisibleKeys(2)
	if len(visible) != 2 || visible[0].GroupID != 2 || visible[1].GroupID != 1 {
		t.Errorf("VisibleKeys(2) = %+v, want B before A", visible)
	}
}

func TestGroupStoreLastVisibleKey(t *testing.T) {
	t.Parallel()

	s := NewGroupStore()
	dialog := DialogID{Kind: DialogUser, ID: 1}

	for i, date := range []int32{1, 2, 3} {
		id := NotificationGroupID(i + 1)
		_, key := s.GetOrCreate(id, dialog)
		s.Remove(key)
		key.LastNotificationDate = date
		s.Insert(key, &Group{})
	}

	// max_group_count = 2: among all 3 groups the window keeps the 2 most recent
	// (dates 3 and 2); LastVisibleKey returns the last one still inside that
	// window, at 0-indexed position max_group_count-1 = 1, i.e. the group
	// dated 2 — the eviction boundary a newly-flushed group must outrank.
	last := s.LastVisibleKey(2)
	if last.LastNotificationDate != 2 {
		t.Errorf("LastVisibleKey(2).LastNotificationDate = %d, want 2", last.LastNotificationDate)
	}

	// max_group_count beyond the number of stored groups -> empty sentinel key.
	if got := s.LastVisibleKey(10); got != emptyGroupKey {
		t.Errorf("LastVisibleKey(10) = %+v, want empty sentinel", got)
	}
}
