/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"slices"
	"strings"
	"sync"
)

// CompositeUnit runs several units (e.g. HTTP and gRPC servers) as one.
type CompositeUnit struct {
	Units []Unit
}

var _ Unit = (*CompositeUnit)(nil)
var _ MetricsRegisterer = (*CompositeUnit)(nil)

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently and returns when all of them have returned from Start successfully,
// or as soon as one of them fails. In the latter case the rest are stopped non-gracefully and
// a CompositeUnitError with the failures (stop errors included) is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	results := make(chan error, len(cu.Units))
	for _, unit := range cu.Units {
		go func() {
			unitFatalError := make(chan error, 1)
			unit.Start(unitFatalError)
			select {
			case err := <-unitFatalError:
				results <- err
			default:
				results <- nil
			}
		}()
	}

	for range cu.Units {
		err := <-results
		if err == nil {
			continue
		}
		errs := []error{err}
		if stopErr := cu.Stop(false); stopErr != nil {
			errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
		}
		errs = append(errs, drainErrors(results)...)
		fatalError <- &CompositeUnitError{UnitErrors: errs}
		return
	}
}

func drainErrors(results <-chan error) []error {
	var errs []error
	for {
		select {
		case err := <-results:
			if err != nil {
				errs = append(errs, err)
			}
		default:
			return errs
		}
	}
}

// Stop stops all units concurrently and waits for them.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i, unit := range cu.Units {
		go func() {
			defer wg.Done()
			errs[i] = unit.Stop(gracefully)
		}()
	}
	wg.Wait()

	errs = slices.DeleteFunc(errs, func(err error) bool { return err == nil })
	if len(errs) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: errs}
}

// MustRegisterMetrics registers metrics of all units that implement MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	cu.forEachMetricsRegisterer(MetricsRegisterer.MustRegisterMetrics)
}

// UnregisterMetrics unregisters metrics of all units that implement MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	cu.forEachMetricsRegisterer(MetricsRegisterer.UnregisterMetrics)
}

func (cu *CompositeUnit) forEachMetricsRegisterer(fn func(MetricsRegisterer)) {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			fn(mr)
		}
	}
}

// CompositeUnitError contains errors of the units of a CompositeUnit.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error returns all unit errors separated by semicolons.
func (cue *CompositeUnitError) Error() string {
	var sb strings.Builder
	for i, err := range cue.UnitErrors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap returns the unit errors, so errors.Is and errors.As see each of them.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
