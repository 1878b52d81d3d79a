package types

import "fmt"

// Progress is the capture device's current position.
type Progress struct {
	Round        int `json:"round"`
	ImageInRound int `json:"image_in_round"`
}

// Before reports whether p is strictly earlier than o.
func (p Progress) Before(o Progress) bool {
	if p.Round != o.Round {
		return p.Round < o.Round
	}
	return p.ImageInRound < o.ImageInRound
}

func (p Progress) String() string {
	return fmt.Sprintf("round %d, image %d", p.Round, p.ImageInRound)
}
