package notify

import "telegram-userbot/internal/infra/logger"

// Flush реализует §4.5-4.7: обрабатывает pending-очередь группы groupID,
// разбивает её на суб-батчи по (settings_dialog_id, is_silent), применяет
// политику видимости/вытеснения относительно tunables.GroupCountMax и
// tunables.GroupSizeMax, и эмитит через sink последовательность обновлений.
// Переустанавливает ключ группы, отражающий самую свежую вошедшую дату.
func Flush(store *GroupStore, tunables Tunables, sink UpdateSink, groupID NotificationGroupID) {
	group, key, ok := store.Lookup(groupID)
	assertContract(ok, "Flush", "flush fired for unknown group_id")
	store.Remove(key)

	assertContract(len(group.PendingNotifications) > 0, "Flush", "pending_notifications must not be empty on flush")

	finalKey := key
	for _, pn := range group.PendingNotifications {
		if pn.Date >= finalKey.LastNotificationDate {
			finalKey.LastNotificationDate = pn.Date
		}
	}
	assertContract(finalKey.LastNotificationDate != 0, "Flush", "final key date must be non-zero")

	lastKey := store.LastVisibleKey(tunables.GroupCountMax)
	wasVisible := key.LastNotificationDate != 0 && key.Less(lastKey)
	isVisible := finalKey.Less(lastKey)

	if !isVisible {
		assertContract(!wasVisible, "Flush", "group lost visibility while gaining a newer notification")
		logger.Debugf("notify: flush %s: no longer in visible window, appending %d pending without emitting",
			key.GroupID, len(group.PendingNotifications))
		for _, pn := range group.PendingNotifications {
			group.Notifications = append(group.Notifications, Notification{ID: pn.ID, Type: pn.Type})
		}
	} else {
		if !wasVisible {
			if lastKey.LastNotificationDate != 0 {
				if evicted, _, found := store.Lookup(lastKey.GroupID); found {
					sendRemoveGroupUpdate(lastKey, evicted, tunables.GroupSizeMax, sink)
				}
			}
			sendAddGroupUpdate(key, group, tunables.GroupSizeMax, sink)
		}
		flushSubBatches(key, group, tunables.GroupSizeMax, sink)
	}

	group.PendingFlushTime = 0
	group.PendingNotifications = nil

	if int32(len(group.Notifications)) > tunables.KeepSize+extraGroupSize {
		drop := int32(len(group.Notifications)) - tunables.KeepSize
		group.Notifications = group.Notifications[drop:]
	}

	store.Insert(finalKey, group)
}

// flushSubBatches разбивает group.PendingNotifications на максимальные
// непрерывные пробеги с общей парой (settings_dialog_id, is_silent) и
// флашит каждый через flushSubBatch.
func flushSubBatches(key GroupKey, group *Group, maxGroupSize int32, sink UpdateSink) {
	var run []PendingNotification
	first := true
	var curSettings DialogID
	var curSilent bool

	flush := func() {
		flushSubBatch(key, group, run, maxGroupSize, sink)
		run = nil
	}

	for _, pn := range group.PendingNotifications {
		if first || curSettings != pn.SettingsDialogID || curSilent != pn.IsSilent {
			if !first {
				flush()
			}
			curSettings = pn.SettingsDialogID
			curSilent = pn.IsSilent
			first = false
		}
		run = append(run, pn)
	}
	if len(run) > 0 {
		flush()
	}
}

// flushSubBatch реализует the sub-batch overload of flush_pending_notifications:
// рендерит каждый pending-элемент run, отбрасывает null-рендеры, подрезает
// эмитируемый список added до maxGroupSize (оставляя самые новые), считает
// removed_notification_ids среди ранее видимого хвоста, и увеличивает
// total_count на количество реально сохранённых элементов.
func flushSubBatch(key GroupKey, group *Group, run []PendingNotification, maxGroupSize int32, sink UpdateSink) {
	if len(run) == 0 {
		return
	}

	oldCount := len(group.Notifications)
	shownCount := oldCount
	if int32(shownCount) > maxGroupSize {
		shownCount = int(maxGroupSize)
	}

	added := make([]AddedNotification, 0, len(run))
	for _, pn := range run {
		rendered := pn.Type.Render(key.DialogID)
		if rendered == nil {
			logger.Debugf("notify: dropping unrenderable notification %s in %s", pn.ID, key.GroupID)
			continue
		}
		group.Notifications = append(group.Notifications, Notification{ID: pn.ID, Type: pn.Type})
		added = append(added, AddedNotification{ID: pn.ID, Rendered: rendered})
	}
	if int32(len(added)) > maxGroupSize {
		drop := int32(len(added)) - maxGroupSize
		added = added[drop:]
	}

	// removedCount реализует P3 на уже подрезанном added, как и оригинал
	// (NotificationManager.cpp:242-259 — erase, затем сравнение с max): сколько
	// ранее показанных элементов вытесняется из окна max_group_size вновь добавленными.
	var removed []NotificationID
	if shownCount+len(added) > int(maxGroupSize) {
		removedCount := shownCount + len(added) - int(maxGroupSize)
		removed = make([]NotificationID, 0, removedCount)
		for i := 0; i < removedCount; i++ {
			idx := oldCount - shownCount + i
			removed = append(removed, group.Notifications[idx].ID)
		}
	}

	// total_count продвигается на количество элементов, реально попавших в
	// added_notifications после max_group_size cap — spec.md §4.5-4.6, P4, и
	// оригинал (group.total_count += added_notifications.size() после erase).
	group.TotalCount += int32(len(added))
	if len(added) > 0 {
		sink.SendGroupUpdate(GroupUpdate{
			GroupID:          key.GroupID,
			DialogID:         key.DialogID,
			SettingsDialogID: run[0].SettingsDialogID,
			IsSilent:         run[0].IsSilent,
			TotalCount:       group.TotalCount,
			Added:            added,
			RemovedIDs:       removed,
		})
	} else {
		assertContract(len(removed) == 0, "flushSubBatch", "cannot have removed ids with nothing added")
	}
}

// sendRemoveGroupUpdate реализует §4.7: withdraw до max_group_size элементов
// группы, вытесняемой из окна видимости освобождающейся группой.
func sendRemoveGroupUpdate(key GroupKey, group *Group, maxGroupSize int32, sink UpdateSink) {
	total := len(group.Notifications)
	removedSize := total
	if int32(removedSize) > maxGroupSize {
		removedSize = int(maxGroupSize)
	}
	if removedSize == 0 {
		return
	}
	ids := make([]NotificationID, 0, removedSize)
	for i := total - removedSize; i < total; i++ {
		ids = append(ids, group.Notifications[i].ID)
	}
	sink.SendGroupUpdate(GroupUpdate{
		GroupID:          key.GroupID,
		DialogID:         key.DialogID,
		SettingsDialogID: key.DialogID,
		IsSilent:         true,
		TotalCount:       0,
		RemovedIDs:       ids,
	})
}

// sendAddGroupUpdate реализует §4.7: seed-обновление, показывающее до
// max_group_size уже накопленных элементов новой видимой группы.
func sendAddGroupUpdate(key GroupKey, group *Group, maxGroupSize int32, sink UpdateSink) {
	total := len(group.Notifications)
	addedSize := total
	if int32(addedSize) > maxGroupSize {
		addedSize = int(maxGroupSize)
	}
	added := make([]AddedNotification, 0, addedSize)
	for i := total - addedSize; i < total; i++ {
		n := group.Notifications[i]
		rendered := n.Type.Render(key.DialogID)
		if rendered == nil {
			continue
		}
		added = append(added, AddedNotification{ID: n.ID, Rendered: rendered})
	}
	if len(added) == 0 {
		return
	}
	sink.SendGroupUpdate(GroupUpdate{
		GroupID:  key.GroupID,
		DialogID: key.DialogID,
		IsSilent: true,
		Added:    added,
	})
}
