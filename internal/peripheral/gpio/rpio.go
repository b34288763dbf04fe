package gpio

import (
	rpio "github.com/stianeikeland/go-rpio/v4"
)

var (
	rpioOpen  = rpio.Open
	rpioClose = rpio.Close
)

// RPIOInput reads a BCM pin through the memory-mapped register block.
// rpio.Open must have succeeded first.
type RPIOInput struct {
	pin       rpio.Pin
	activeLow bool
	read      func() rpio.State
}

// NewRPIOInput configures pin as an input with the given pull.
func NewRPIOInput(pin int, bias Bias, activeLow bool) *RPIOInput {
	p := rpio.Pin(pin)
	p.Input()

	switch bias {
	case BiasPullUp:
		p.PullUp()
	case BiasPullDown:
		p.PullDown()
	default:
		p.PullOff()
	}

	return &RPIOInput{pin: p, activeLow: activeLow, read: p.Read}
}

// Read implements Input. It never fails.
func (in *RPIOInput) Read() (bool, error) {
	high := in.read() == rpio.High
	return high != in.activeLow, nil
}

// Close implements Input. Pins are released together by rpio.Close.
func (in *RPIOInput) Close() error {
	return nil
}
