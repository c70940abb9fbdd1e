package util

import (
	"sync"

	"go.uber.org/multierr"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Perror collects errors reported from parallel worker threads and gives access to them once the parallel job has
// completed. Errors are combined with multierr so the collected set can be returned as a single error value.
type Perror struct {
	err        error // Combined errors.
	sync.Mutex       // For synchronising writes and reads.
}

// ---------------------
// ----- functions -----
// ---------------------

// NewPerror returns an empty error collector.
func NewPerror() *Perror {
	return &Perror{}
}

// Append records err. <nil> errors are ignored.
func (pe *Perror) Append(err error) {
	if err == nil {
		return
	}
	pe.Lock()
	defer pe.Unlock()
	pe.err = multierr.Append(pe.err, err)
}

// Err returns the collected errors combined into one, or <nil>.
func (pe *Perror) Err() error {
	pe.Lock()
	defer pe.Unlock()
	return pe.err
}

