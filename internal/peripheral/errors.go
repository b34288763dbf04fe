package peripheral

import "errors"

var (
	// ErrNoSensor is returned by NewGateway when a sensor is missing.
	ErrNoSensor = errors.New("peripheral: motion and busy sensors are required")

	// ErrNoModule is returned by NewGateway when the audio module is missing.
	ErrNoModule = errors.New("peripheral: audio module is required")
)
