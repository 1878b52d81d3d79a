package types

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan is returned when a capture plan fails validation.
var ErrInvalidPlan = errors.New("invalid capture plan")

// Plan is the ordered list of per-round image counts submitted to the capture device.
type Plan []int

// Validate checks that the plan has at least one round and every round asks for
// at least one image.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no rounds", ErrInvalidPlan)
	}
	for i, n := range p {
		if n <= 0 {
			return fmt.Errorf("%w: round %d has %d images", ErrInvalidPlan, i, n)
		}
	}
	return nil
}

// Target returns the progress value the device reports once the last image of
// the last round has been taken.
func (p Plan) Target() Progress {
	if len(p) == 0 {
		return Progress{}
	}
	return Progress{Round: len(p) - 1, ImageInRound: p[len(p)-1]}
}

// Total is the number of images the plan asks for across all rounds.
func (p Plan) Total() int {
	var n int
	for _, c := range p {
		n += c
	}
	return n
}
