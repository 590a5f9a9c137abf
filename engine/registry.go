package engine

import (
	"bytes"
	"path/filepath"
	"sync"

	"github.com/fulldump/realmdb/failure"
)

// Registry shares one Store per path inside the process.
type Registry struct {
	mutex  sync.Mutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{
		stores: map[string]*Store{},
	}
}

// DefaultRegistry is the process wide registry.
var DefaultRegistry = NewRegistry()

func registryName(options Options) (string, error) {
	if options.InMemory {
		return "memory:" + options.Path, nil
	}
	abs, err := filepath.Abs(options.Path)
	if err != nil {
		return "", failure.Wrap(failure.InvalidArgument, err, "path '%s'", options.Path)
	}
	return "file:" + abs, nil
}

// Acquire returns the store for the path, opening it on first use. Every
// successful call must be paired with a Release.
func (r *Registry) Acquire(options Options) (*Store, error) {

	name, err := registryName(options)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if s, ok := r.stores[name]; ok {
		if !bytes.Equal(s.Options.Key, options.Key) {
			return nil, failure.New(failure.InvalidArgument, "'%s' is already opened with a different encryption key", options.Path)
		}
		if options.Backend != "" && s.Options.Backend != "" && options.Backend != s.Options.Backend {
			return nil, failure.New(failure.InvalidArgument, "'%s' is already opened with backend '%s'", options.Path, s.Options.Backend)
		}
		s.mutex.Lock()
		s.refs++
		s.mutex.Unlock()
		return s, nil
	}

	s, err := Open(options)
	if err != nil {
		return nil, err
	}
	s.registry = r
	s.name = name
	r.stores[name] = s

	return s, nil
}

// Lookup returns an already opened store without acquiring it.
func (r *Registry) Lookup(options Options) (*Store, bool) {
	name, err := registryName(options)
	if err != nil {
		return nil, false
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, ok := r.stores[name]
	return s, ok
}

// References is the number of holders of the store.
func (s *Store) References() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.refs
}

// Release drops one reference. The last one closes the store unless a pin
// still holds it, in which case the last pin does.
func (s *Store) Release() error {
	return s.drop(func() {
		s.refs--
	})
}

// drop runs f under the store lock and closes the store when nothing holds
// it anymore.
func (s *Store) drop(f func()) error {

	r := s.registry
	if r != nil {
		r.mutex.Lock()
		defer r.mutex.Unlock()
	}

	s.mutex.Lock()
	f()
	unused := s.refs <= 0 && s.pinned <= 0
	s.mutex.Unlock()

	if !unused {
		return nil
	}

	if r != nil && r.stores[s.name] == s {
		delete(r.stores, s.name)
	}
	return s.close()
}
