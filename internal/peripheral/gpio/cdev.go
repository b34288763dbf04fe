package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// lineValuer is the part of *gpiocdev.Line an input uses.
type lineValuer interface {
	Value() (int, error)
	Close() error
}

// CdevInput reads a line through the GPIO character device.
type CdevInput struct {
	line lineValuer
}

// RequestInput requests offset on chip as an input. With activeLow the
// kernel inverts the value, so Read still reports "asserted" as true.
func RequestInput(chip string, offset int, bias Bias, activeLow bool) (*CdevInput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}

	switch bias {
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasPullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	default:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	return &CdevInput{line: line}, nil
}

// Read implements Input.
func (in *CdevInput) Read() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, fmt.Errorf("reading line: %w", err)
	}
	return v == 1, nil
}

// Close implements Input.
func (in *CdevInput) Close() error {
	return in.line.Close()
}
