package sequestration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CalculationError is returned when an estimate request is malformed or out of
// domain. It is always raised before any simulation runs and can be fixed by
// the caller correcting the input.
type CalculationError struct {
	Field   string   `json:"field"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *CalculationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, "; "))
}

// LandCoverError describes why a land-cover summary could not be used.
// It never escapes Estimate; the resolver turns it into a fallback.
type LandCoverError struct {
	Reason string
}

func (e *LandCoverError) Error() string {
	return "land cover integration: " + e.Reason
}

// ParameterError reports a malformed allometric parameter set. It indicates a
// catalog defect rather than a bad request.
type ParameterError struct {
	Class string
	Field string
	Value float64
}

func (e *ParameterError) Error() string {
	class := e.Class
	if class == "" {
		class = "default"
	}
	return fmt.Sprintf("allometric parameters for %s: invalid %s (%v)", class, e.Field, e.Value)
}

// SimulationError is returned when the Monte Carlo model produces non-finite
// values. Retrying with the same inputs reproduces the failure.
type SimulationError struct {
	Index int
	Date  time.Time
	Cause string
}

func (e *SimulationError) Error() string {
	if e.Date.IsZero() {
		return "monte carlo simulation failed: " + e.Cause
	}
	return fmt.Sprintf("monte carlo simulation failed for point %d (%s): %s",
		e.Index, e.Date.Format(DateLayout), e.Cause)
}

// IsValidationError reports whether err is a caller-correctable input problem.
func IsValidationError(err error) bool {
	var calcErr *CalculationError
	return errors.As(err, &calcErr)
}

// IsInternalError reports whether err stems from the model itself (catalog or
// simulation) and needs investigation rather than a retry.
func IsInternalError(err error) bool {
	var paramErr *ParameterError
	var simErr *SimulationError
	return errors.As(err, &paramErr) || errors.As(err, &simErr)
}
