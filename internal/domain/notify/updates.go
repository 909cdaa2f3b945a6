package notify

// AddedNotification — один элемент добавленных в updateNotificationGroup.
type AddedNotification struct {
	ID       NotificationID
	Rendered *RenderedContent
}

// GroupUpdate — updateNotificationGroup спецификации (§6): диффовое
// обновление одной группы для UI-слоя — что добавилось, что убралось, и
// новый total_count.
type GroupUpdate struct {
	GroupID          NotificationGroupID
	DialogID         DialogID
	SettingsDialogID DialogID
	IsSilent         bool
	TotalCount       int32
	Added            []AddedNotification
	RemovedIDs       []NotificationID
}

// SingleUpdate — updateNotification спецификации (§6): точечное обновление
// одного уведомления внутри уже видимой группы (используется EditNotification).
type SingleUpdate struct {
	GroupID      NotificationGroupID
	Notification AddedNotification
}

// UpdateSink — приёмник исходящих обновлений, fire-and-forget (spec.md §5,
// §6: backpressure не моделируется). Реализуется CLI/веб-слоем.
type UpdateSink interface {
	SendGroupUpdate(GroupUpdate)
	SendSingleUpdate(SingleUpdate)
}
