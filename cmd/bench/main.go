package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"
)

type Config struct {
	Test    string `usage:"name of the test: ALL | INSERT | REFERENCES"`
	Dir     string `usage:"data directory, a temporary one when empty"`
	Backend string `usage:"storage backend: jsonl | sqlite | memory"`
	N       int64  `usage:"number of objects"`
	Batch   int64  `usage:"objects per write transaction"`
	Workers int    `usage:"number of workers"`
}

var cleanups []func()

func main() {

	defer func() {
		fmt.Println("Cleaning up...")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	c := Config{
		Test:    "all",
		Backend: "jsonl",
		N:       100_000,
		Batch:   1_000,
		Workers: 16,
	}
	goconfig.Read(&c)

	if c.Dir == "" {
		dir, cleanup := TempDir()
		cleanups = append(cleanups, cleanup)
		c.Dir = dir
	}

	switch strings.ToUpper(c.Test) {
	case "ALL":
		TestInsert(c)
		TestReferences(c)
	case "INSERT":
		TestInsert(c)
	case "REFERENCES":
		TestReferences(c)
	default:
		log.Fatalf("Unknown test %s", c.Test)
	}

}
