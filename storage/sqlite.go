package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage keeps the log in a single table of a SQLite database:
//
//	commands(seq, data)  PRIMARY KEY (seq)
type SQLiteStorage struct {
	Filename string
	codec    *codec
	db       *sql.DB
}

func NewSQLiteStorage(filename string, c *codec) (*SQLiteStorage, error) {

	if c == nil {
		c = &codec{}
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// one writer at a time, the engine serializes commits anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		`CREATE TABLE IF NOT EXISTS commands (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			data BLOB NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare database: %w", err)
		}
	}

	return &SQLiteStorage{
		Filename: filename,
		codec:    c,
		db:       db,
	}, nil
}

func (s *SQLiteStorage) Persist(cmd *Command) error {
	data, err := s.codec.encode(cmd)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT INTO commands (data) VALUES (?)", data)
	return err
}

func (s *SQLiteStorage) Load() (<-chan LoadedCommand, <-chan error) {
	return loadRecords(func(emit func(data []byte)) error {
		rows, err := s.db.Query("SELECT data FROM commands ORDER BY seq")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			emit(data)
		}
		return rows.Err()
	}, s.codec)
}

func (s *SQLiteStorage) Rewrite(cmds []*Command) error {

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM commands"); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO commands (data) VALUES (?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cmd := range cmds {
		data, err := s.codec.encode(cmd)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(data); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	_, err = s.db.Exec("VACUUM")
	return err
}

func (s *SQLiteStorage) Size() (int64, error) {
	var pages, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pages); err != nil {
		return 0, err
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pages * pageSize, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
