// Package recovery decides how the scan loop reacts to a failed cycle.
package recovery

import "errors"

// FailureCategory tells transient failures from ones a retry cannot fix.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryPermanent
)

func (c FailureCategory) String() string {
	if c == CategoryPermanent {
		return "permanent"
	}
	return "transient"
}

// Classifier maps an error to a category.
type Classifier func(err error) FailureCategory

// PermanentOn returns a classifier that marks errors matching any of targets as permanent.
func PermanentOn(targets ...error) Classifier {
	return func(err error) FailureCategory {
		for _, target := range targets {
			if errors.Is(err, target) {
				return CategoryPermanent
			}
		}
		return CategoryTransient
	}
}
