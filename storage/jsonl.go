package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLStorage keeps one command per line in a plain file.
type JSONLStorage struct {
	Filename string
	codec    *codec

	mutex  sync.Mutex
	file   *os.File
	buffer *bufio.Writer
	closed bool
}

func NewJSONLStorage(filename string, c *codec) (*JSONLStorage, error) {

	if c == nil {
		c = &codec{}
	}

	err := os.MkdirAll(filepath.Dir(filename), 0755)
	if err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	s := &JSONLStorage{
		Filename: filename,
		codec:    c,
	}

	err = s.openForAppend()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *JSONLStorage) openForAppend() error {
	f, err := os.OpenFile(s.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("open file for write: %w", err)
	}
	s.file = f
	s.buffer = bufio.NewWriterSize(f, 64*1024)
	return nil
}

func (s *JSONLStorage) Persist(cmd *Command) error {

	data, err := s.codec.encode(cmd)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return fmt.Errorf("storage closed")
	}

	s.buffer.Write(data)
	s.buffer.WriteByte('\n')
	err = s.buffer.Flush()
	if err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *JSONLStorage) Load() (<-chan LoadedCommand, <-chan error) {
	return loadRecords(func(emit func(data []byte)) error {

		f, err := os.Open(s.Filename)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		const maxCapacity = 16 * 1024 * 1024
		buf := make([]byte, maxCapacity)
		scanner.Buffer(buf, maxCapacity)

		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			// Copy data because scanner reuses buffer
			data := make([]byte, len(scanner.Bytes()))
			copy(data, scanner.Bytes())
			emit(data)
		}
		return scanner.Err()
	}, s.codec)
}

func (s *JSONLStorage) Rewrite(cmds []*Command) error {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return fmt.Errorf("storage closed")
	}

	tmp := s.Filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create tmp file: %w", err)
	}
	defer os.Remove(tmp)

	w := bufio.NewWriter(f)
	for _, cmd := range cmds {
		data, err := s.codec.encode(cmd)
		if err != nil {
			f.Close()
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	err = w.Flush()
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}

	s.file.Close()
	err = os.Rename(tmp, s.Filename)
	if err != nil {
		// keep appending to the previous file
		if openErr := s.openForAppend(); openErr != nil {
			s.closed = true
		}
		return fmt.Errorf("rename tmp file: %w", err)
	}

	return s.openForAppend()
}

func (s *JSONLStorage) Size() (int64, error) {
	info, err := os.Stat(s.Filename)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *JSONLStorage) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.buffer.Flush()
	return s.file.Close()
}
