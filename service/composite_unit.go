/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"
)

// CompositeUnit runs several units as one.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new CompositeUnit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently and returns when all of them have returned from Start.
// When a unit fails, the rest are stopped non-gracefully and the failures are reported
// as a single CompositeUnitError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	failures := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	for _, u := range cu.Units {
		wg.Add(1)
		go func(u Unit) {
			defer wg.Done()
			unitFatal := make(chan error, 1)
			u.Start(unitFatal)
			select {
			case err := <-unitFatal:
				failures <- err
			default:
			}
		}(u)
	}
	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	var errs []error
	select {
	case err := <-failures:
		errs = append(errs, err)
	case <-allReturned:
		select {
		case err := <-failures:
			errs = append(errs, err)
		default:
			return
		}
	}

	stopErr := cu.Stop(false)
	for drained := false; !drained; {
		select {
		case err := <-failures:
			errs = append(errs, err)
		default:
			drained = true
		}
	}
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalError <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently. Their errors are joined into a CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	for i, u := range cu.Units {
		wg.Add(1)
		go func(i int, u Unit) {
			defer wg.Done()
			errs[i] = u.Stop(gracefully)
		}(i, u)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: failed}
}

// CompositeUnitError holds the errors of the failed units.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, len(cue.UnitErrors))
	for i, err := range cue.UnitErrors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap makes errors.Is and errors.As look into the unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
