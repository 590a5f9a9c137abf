package storage

import (
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
)

type Command struct {
	Name      string         `json:"name"`
	Uuid      string         `json:"uuid"`
	Timestamp int64          `json:"timestamp"`
	Payload   jsontext.Value `json:"payload"`
}

func NewCommand(name string, payload any) (*Command, error) {

	p, err := json.Marshal(payload, json.Deterministic(true))
	if err != nil {
		return nil, err
	}

	return &Command{
		Name:      name,
		Uuid:      uuid.New().String(),
		Timestamp: time.Now().UnixNano(),
		Payload:   p,
	}, nil
}

type LoadedCommand struct {
	Seq int
	Cmd *Command
	Err error
}
