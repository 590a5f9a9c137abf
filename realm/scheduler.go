package realm

import (
	"path/filepath"
	"sync"
)

// Scheduler identifies a confinement context, usually one goroutine or one
// event loop. A realm must only be used from the context that opened it.
type Scheduler struct {
	mutex  sync.Mutex
	realms map[string]*Realm
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		realms: map[string]*Realm{},
	}
}

func schedulerKey(c *Config) string {
	if c.InMemory {
		return "memory:" + c.Path
	}
	abs, err := filepath.Abs(c.Path)
	if err != nil {
		abs = c.Path
	}
	return "file:" + abs
}

func (s *Scheduler) lookup(key string) (*Realm, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r, ok := s.realms[key]
	return r, ok
}

func (s *Scheduler) add(key string, r *Realm) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.realms[key] = r
}

func (s *Scheduler) remove(key string, r *Realm) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.realms[key] == r {
		delete(s.realms, key)
	}
}

// Len is the number of open realms cached by the scheduler.
func (s *Scheduler) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.realms)
}
