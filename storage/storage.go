package storage

import (
	"fmt"

	"github.com/go-json-experiment/json"
)

// Storage is a durable, ordered log of commands.
type Storage interface {
	// Persist returns once the command is durable.
	Persist(cmd *Command) error
	// Load streams every persisted command in order.
	Load() (<-chan LoadedCommand, <-chan error)
	// Rewrite atomically replaces the whole log.
	Rewrite(cmds []*Command) error
	// Size is the number of bytes the log takes.
	Size() (int64, error)
	Close() error
}

const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Options struct {
	Backend string
	Path    string
	Key     []byte
}

type factory func(options Options, c *codec) (Storage, error)

var backends = map[string]factory{
	BackendJSONL: func(options Options, c *codec) (Storage, error) {
		return NewJSONLStorage(options.Path, c)
	},
	BackendSQLite: func(options Options, c *codec) (Storage, error) {
		return NewSQLiteStorage(options.Path, c)
	},
	BackendMemory: func(options Options, c *codec) (Storage, error) {
		return NewMemoryStorage(c), nil
	},
}

func Open(options Options) (Storage, error) {

	if options.Backend == "" {
		options.Backend = BackendJSONL
	}

	f, ok := backends[options.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend '%s'", options.Backend)
	}

	c, err := newCodec(options.Key)
	if err != nil {
		return nil, err
	}

	return f(options, c)
}

// codec turns commands into records and back, sealing them when a key is set.
type codec struct {
	cipher *Cipher
}

func newCodec(key []byte) (*codec, error) {
	if len(key) == 0 {
		return &codec{}, nil
	}
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &codec{cipher: c}, nil
}

func (c *codec) encode(cmd *Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	if c.cipher == nil {
		return data, nil
	}
	return c.cipher.Seal(data)
}

func (c *codec) decode(record []byte) (*Command, error) {
	if c.cipher != nil {
		plain, err := c.cipher.Open(record)
		if err != nil {
			return nil, err
		}
		record = plain
	}
	cmd := &Command{}
	err := json.Unmarshal(record, cmd)
	if err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}
