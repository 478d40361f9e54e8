package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerService Badger 支持的持久化服务。进程重启后 worker 的虚拟订单与
// 跨重启簿记（bootstrap 标记、中心价缓存）从这里恢复。
type BadgerService struct {
	db *badger.DB
}

func OpenBadger(path string) (*BadgerService, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerService{db: db}, nil
}

func (s *BadgerService) NewStore(prefix, id, tag string) Store {
	return &badgerStore{
		db:  s.db,
		key: []byte(fmt.Sprintf("%s:%s:%s", prefix, id, tag)),
	}
}

func (s *BadgerService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type badgerStore struct {
	db  *badger.DB
	key []byte
}

func (s *badgerStore) Save(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, b)
	})
}

func (s *badgerStore) Load(data any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotExists
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return ErrNotExists
			}
			return json.Unmarshal(val, data)
		})
	})
}

func (s *badgerStore) Delete() error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(s.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
