package notify

import "sort"

// GroupStore — упорядоченный ассоциативный контейнер GroupKey -> *Group.
// Реализован как отсортированный срез плюс индекс по group_id (spec.md §9
// прямо предлагает этот вариант как альтернативу связке "хэш-мапа плюс
// турнирная структура для топ-M"; при реалистичных количествах групп
// (десятки, не миллионы) сдвиг среза при вставке/удалении дешевле, чем
// содержать сбалансированное дерево). order[i] отсортирован так, что
// order[i].Less(order[j]) для любых i < j — то есть order[0] самый "свежий".
type GroupStore struct {
	order   []GroupKey
	groups  map[NotificationGroupID]*Group
	keyByID map[NotificationGroupID]GroupKey
}

// NewGroupStore создаёт пустое хранилище групп.
func NewGroupStore() *GroupStore {
	return &GroupStore{
		groups:  make(map[NotificationGroupID]*Group),
		keyByID: make(map[NotificationGroupID]GroupKey),
	}
}

// cmpKey — трёхзначное сравнение, согласованное с GroupKey.Less: -1 если a
// строго раньше b в порядке, 1 если позже, 0 при точном совпадении ключа
// (что означает совпадение group_id, так как тай-брейк идёт по нему).
func cmpKey(a, b GroupKey) int {
	if a.Less(b) {
		return -1
	}
	if b.Less(a) {
		return 1
	}
	return 0
}

// searchInsertPos находит индекс первой позиции в order, которая не идёт
// раньше key — то есть корректную точку вставки, сохраняющую сортировку.
func (s *GroupStore) searchInsertPos(key GroupKey) int {
	return sort.Search(len(s.order), func(i int) bool {
		return cmpKey(s.order[i], key) >= 0
	})
}

// Lookup возвращает группу по её идентификатору и её текущий ключ.
// Линейный скан по group_id, отмеченный в spec.md §9 как TODO исходника,
// здесь заменён на прямой доступ по индексной мапе.
func (s *GroupStore) Lookup(id NotificationGroupID) (*Group, GroupKey, bool) {
	g, ok := s.groups[id]
	if !ok {
		return nil, GroupKey{}, false
	}
	return g, s.keyByID[id], true
}

// GetOrCreate возвращает существующую группу для id, либо лениво создаёт
// новую с LastNotificationDate == 0 (spec.md §3 Lifecycle) и сразу вставляет
// её в порядок.
func (s *GroupStore) GetOrCreate(id NotificationGroupID, dialog DialogID) (*Group, GroupKey) {
	if g, key, ok := s.Lookup(id); ok {
		return g, key
	}
	key := GroupKey{GroupID: id, DialogID: dialog, LastNotificationDate: 0}
	g := &Group{}
	s.insertLocked(key, g)
	return g, key
}

// Remove изымает группу под ключом key из порядка (но не из индексной мапы —
// вызывающий обязан либо Insert её обратно под новым ключом, либо явно
// удалить через Delete). Используется в начале flush.go как "remove (K,G),
// key will change".
func (s *GroupStore) Remove(key GroupKey) {
	pos := s.searchInsertPos(key)
	if pos < len(s.order) && s.order[pos] == key {
		s.order = append(s.order[:pos], s.order[pos+1:]...)
	}
}

// Insert вставляет (key, group) в порядок и обновляет обе индексные мапы.
// Реализует I2: group_id уникален среди ключей — вызывающий не должен
// вставлять уже присутствующий group_id без предварительного Remove.
func (s *GroupStore) Insert(key GroupKey, group *Group) {
	s.insertLocked(key, group)
}

func (s *GroupStore) insertLocked(key GroupKey, group *Group) {
	pos := s.searchInsertPos(key)
	s.order = append(s.order, GroupKey{})
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = key
	s.groups[key.GroupID] = group
	s.keyByID[key.GroupID] = key
}

// Delete полностью удаляет группу (из порядка и из индексных мап). Нужен
// remove-пути (§6.1 SPEC_FULL.md) не пользуется — группы никогда не
// удаляются целиком в текущем протоколе, только их содержимое; оставлен
// как явный метод для полноты API хранилища.
func (s *GroupStore) Delete(id NotificationGroupID) {
	if key, ok := s.keyByID[id]; ok {
		s.Remove(key)
		delete(s.keyByID, id)
	}
	delete(s.groups, id)
}

// LastVisibleKey возвращает ключ последней группы, всё ещё входящей в окно
// видимости из maxGroupCount групп (индекс maxGroupCount-1, 0-based), либо
// пустой ключ-сентинел, если групп меньше maxGroupCount. Именно этот ключ
// служит границей вытеснения в flush.go: группа, чей новый ключ сортируется
// раньше этого (Less), гарантированно попадает в топ maxGroupCount и может
// вытеснить эту последнюю группу окна.
func (s *GroupStore) LastVisibleKey(maxGroupCount int32) GroupKey {
	idx := int(maxGroupCount) - 1
	if idx < 0 || idx >= len(s.order) {
		return emptyGroupKey
	}
	return s.order[idx]
}

// Len возвращает общее количество групп в хранилище (видимых и невидимых).
func (s *GroupStore) Len() int { return len(s.order) }

// VisibleKeys возвращает копию текущего окна видимости (до maxGroupCount
// ключей). Используется CLI-командой notifygroups для отладочного снимка.
func (s *GroupStore) VisibleKeys(maxGroupCount int32) []GroupKey {
	n := int(maxGroupCount)
	if n > len(s.order) {
		n = len(s.order)
	}
	out := make([]GroupKey, n)
	copy(out, s.order[:n])
	return out
}
