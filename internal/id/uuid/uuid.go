// Package uuid provides ID generation for searches and API requests.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 strings. v7 IDs sort by creation time, which keeps
// search history and event logs naturally ordered.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (g Generator) NewID() (string, error) {
	id, err := g.NewUUID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewUUID returns a UUIDv7 value for callers that need the binary form.
func (Generator) NewUUID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}
