package jobqueue

import (
	"errors"
	"fmt"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job fails immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type dropError struct {
	reason string
}

func (e *dropError) Error() string { return "job dropped: " + e.reason }

// Drop tells the worker the job no longer applies. It finishes as dropped.
func Drop(reason string) error {
	return &dropError{reason: reason}
}

func isDrop(err error) (string, bool) {
	var d *dropError
	if errors.As(err, &d) {
		return d.reason, true
	}
	return "", false
}

// RetryPolicy computes exponential backoff between attempts.
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultRetryPolicy waits 5s, 10s, 20s and so on, up to five minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 5 * time.Second, Max: 5 * time.Minute}
}

// Backoff returns the delay after the given failed attempt, counted from one.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("handler panic: %v", e.value) }
