package schema

import (
	"fmt"
	"io"
	"os"

	"github.com/go-json-experiment/json"
	"gopkg.in/yaml.v3"
)

// Marshal returns the serialized description of the schema. The encoding is
// deterministic so two equal schemas always produce the same bytes.
func Marshal(s Schema) ([]byte, error) {
	if s == nil {
		s = Schema{}
	}
	return json.Marshal(s, json.Deterministic(true))
}

func Unmarshal(data []byte) (Schema, error) {
	s := Schema{}
	err := json.Unmarshal(data, &s)
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return s, nil
}

type yamlDocument struct {
	Version uint64 `yaml:"version"`
	Objects Schema `yaml:"objects"`
}

// ReadYAML decodes a schema document like:
//
//	version: 2
//	objects:
//	  - name: Person
//	    primary_key: id
//	    properties:
//	      - {name: id, type: int}
//	      - {name: name, type: string, nullable: true}
func ReadYAML(r io.Reader) (Schema, uint64, error) {
	doc := yamlDocument{}
	err := yaml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, 0, fmt.Errorf("decode yaml schema: %w", err)
	}
	if err := doc.Objects.Validate(); err != nil {
		return nil, 0, err
	}
	return doc.Objects, doc.Version, nil
}

func LoadYAML(filename string) (Schema, uint64, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadYAML(f)
}

func WriteYAML(w io.Writer, s Schema, version uint64) error {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	err := e.Encode(yamlDocument{Version: version, Objects: s})
	if err != nil {
		return err
	}
	return e.Close()
}
