package app

import (
	"time"

	"github.com/google/uuid"

	"bk-go/internal/bk"
)

// Operation tracks one CLI command from start to finish. Its RunID tags
// every log line written during the command.
type Operation struct {
	Name      string
	RunID     string
	StartedAt time.Time
	Status    string // "success" or an error kind such as "not_found"
}

// NewOperation starts tracking the named command.
func NewOperation(name string) *Operation {
	return &Operation{
		Name:      name,
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Status:    "success",
	}
}

// Finish records the outcome. A nil error leaves the status unchanged.
func (op *Operation) Finish(err error) {
	if err != nil {
		op.Status = bk.ErrorKind(err)
	}
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.StartedAt)
}
