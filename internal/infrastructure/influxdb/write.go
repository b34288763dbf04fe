package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementConnection = "doorbell_connection"
	MeasurementLoop       = "doorbell_loop"
	MeasurementVolume     = "doorbell_volume"
	MeasurementCommand    = "doorbell_command"
)

// WriteConnection records a messaging connection event ("connected",
// "reconnected", "connect_failed", "lost") with the attempt counter.
func (c *Client) WriteConnection(event string, attempts uint64) {
	c.WritePoint(MeasurementConnection,
		map[string]string{"event": event},
		map[string]interface{}{"attempts": int64(attempts)}, //nolint:gosec // counter fits in int64
	)
}

// WriteLoopHealth records the tick counter and the duration of the last tick.
func (c *Client) WriteLoopHealth(ticks uint64, lastTick time.Duration) {
	c.WritePoint(MeasurementLoop,
		nil,
		map[string]interface{}{
			"ticks":   int64(ticks), //nolint:gosec // counter fits in int64
			"tick_ms": float64(lastTick) / float64(time.Millisecond),
		},
	)
}

// WriteVolume records a volume change.
func (c *Client) WriteVolume(volume int) {
	c.WritePoint(MeasurementVolume, nil, map[string]interface{}{"value": volume})
}

// WriteCommand records one executed remote command.
func (c *Client) WriteCommand(kind string) {
	c.WritePoint(MeasurementCommand,
		map[string]string{"kind": kind},
		map[string]interface{}{"count": 1},
	)
}

// WritePoint writes a point stamped now and tagged with the device host.
//
// Example:
//
//	client.WritePoint("doorbell_loop",
//	    map[string]string{"phase": "boot"},
//	    map[string]interface{}{"ticks": 0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

// WritePointWithTime writes a point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	if c.host != "" {
		all["host"] = c.host
	}

	c.writer.WritePoint(write.NewPoint(measurement, all, fields, timestamp))
}
