package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownSource  = errors.New("unknown source")
	ErrIngestionParse = errors.New("malformed collector output")
	ErrStorage        = errors.New("storage failure")
	ErrNoSubscribers  = errors.New("no subscribers")
	ErrDelivery       = errors.New("delivery failed")
)

// DeliveryError aggregates the failed deliveries of one dispatch.
type DeliveryError struct {
	SourceID int64
	Total    int
	Failures []DeliveryOutcome
}

func NewDeliveryError(sourceID int64, outcomes []DeliveryOutcome) *DeliveryError {
	de := &DeliveryError{SourceID: sourceID, Total: len(outcomes)}
	for _, o := range outcomes {
		if !o.OK() {
			de.Failures = append(de.Failures, o)
		}
	}
	return de
}

func (e *DeliveryError) Error() string {
	recipients := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		recipients = append(recipients, fmt.Sprintf("%s: %v", f.Recipient.Email, f.Err))
	}
	return fmt.Sprintf("source %d: delivery failed for %d of %d subscribers: %s",
		e.SourceID, len(e.Failures), e.Total, strings.Join(recipients, "; "))
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
