package storage

import (
	"fmt"
	"sync"
)

// MemoryStorage keeps the encoded log in memory only. Its content is lost
// when it is closed.
type MemoryStorage struct {
	codec *codec

	mutex   sync.Mutex
	records [][]byte
	closed  bool
}

func NewMemoryStorage(c *codec) *MemoryStorage {
	if c == nil {
		c = &codec{}
	}
	return &MemoryStorage{codec: c}
}

func (s *MemoryStorage) Persist(cmd *Command) error {
	data, err := s.codec.encode(cmd)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return fmt.Errorf("storage closed")
	}
	s.records = append(s.records, data)
	return nil
}

func (s *MemoryStorage) Load() (<-chan LoadedCommand, <-chan error) {
	s.mutex.Lock()
	records := append([][]byte(nil), s.records...)
	s.mutex.Unlock()

	return loadRecords(func(emit func(data []byte)) error {
		for _, r := range records {
			emit(r)
		}
		return nil
	}, s.codec)
}

func (s *MemoryStorage) Rewrite(cmds []*Command) error {
	records := make([][]byte, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := s.codec.encode(cmd)
		if err != nil {
			return err
		}
		records = append(records, data)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return fmt.Errorf("storage closed")
	}
	s.records = records
	return nil
}

func (s *MemoryStorage) Size() (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	size := int64(0)
	for _, r := range s.records {
		size += int64(len(r)) + 1
	}
	return size, nil
}

func (s *MemoryStorage) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
