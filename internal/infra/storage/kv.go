// Файл kv.go — минимальное персистентное key-value хранилище поверх bbolt.
// Используется там, где сущность не заслуживает отдельного файла и своей
// схемы (как QueueStore/FailedStore), а нужен просто durable get/set пары
// строк — в первую очередь для монотонных счётчиков движка уведомлений
// (notification_id_current, notification_group_id_current). Тот же принцип,
// что и у peersmgr.Service: одна bbolt-база на процесс, один бакет на сущность.
package storage

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// KVStore — durable-хранилище строк "ключ -> значение" в одном бакете bbolt.
// Потокобезопасно (bbolt сам сериализует транзакции); методы синхронны.
type KVStore struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenKVStore открывает (создавая при отсутствии) файл bbolt по пути path и
// гарантирует существование бакета bucket. Права на файл — defaultFilePerm,
// как и у остальных durable-хранилищ пакета.
func OpenKVStore(path, bucket string) (*KVStore, error) {
	if err := EnsureDir(path); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, defaultFilePerm, nil)
	if err != nil {
		return nil, fmt.Errorf("open kv store %s: %w", path, err)
	}
	bucketBytes := []byte(bucket)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, errBucket := tx.CreateBucketIfNotExists(bucketBytes)
		return errBucket
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure kv bucket %s: %w", bucket, err)
	}
	return &KVStore{db: db, bucket: bucketBytes}, nil
}

// Get возвращает значение по ключу. Отсутствующий ключ — не ошибка, а пустая
// строка (соответствует поведению KV.get исходного интерфейса: "missing/empty -> 0"
// в терминах allocator.go).
func (s *KVStore) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			value = string(raw)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, nil
}

// Set записывает значение по ключу. Последняя запись побеждает, без
// транзакционной связи между разными ключами — ровно то, что спецификация
// требует от durable-счётчиков ("single-key, last-writer-wins").
func (s *KVStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Close закрывает файл bbolt.
func (s *KVStore) Close() error {
	return s.db.Close()
}
