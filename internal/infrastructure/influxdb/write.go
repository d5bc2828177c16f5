package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the capture service.
const (
	MeasurementRequestOutcome = "capture_request"
	MeasurementStateChange    = "capture_state"
	MeasurementLinkSecured    = "capture_link"
)

// Outcome is one finished request as recorded in InfluxDB.
type Outcome struct {
	Service     string
	RequestType string
	Result      string
	Origin      string
	Devices     int
	Duration    time.Duration
	Time        time.Time
}

// WriteRequestOutcome records one finished request. Request type and
// result are tags; the origin is a field because it is unbounded.
func (c *Client) WriteRequestOutcome(o Outcome) {
	c.WritePointWithTime(MeasurementRequestOutcome,
		map[string]string{
			"service":      o.Service,
			"request_type": o.RequestType,
			"result":       o.Result,
		},
		map[string]any{
			"origin":      o.Origin,
			"devices":     o.Devices,
			"duration_ms": float64(o.Duration) / float64(time.Millisecond),
		},
		o.Time,
	)
}

// WriteStateChange records one stream type of a request entering state.
func (c *Client) WriteStateChange(service, streamType, state string, at time.Time) {
	c.WritePointWithTime(MeasurementStateChange,
		map[string]string{
			"service":     service,
			"stream_type": streamType,
			"state":       state,
		},
		map[string]any{"count": 1},
		at,
	)
}

// WriteLinkSecured records a capturing-link security change.
func (c *Client) WriteLinkSecured(service, streamType string, secure bool, at time.Time) {
	c.WritePointWithTime(MeasurementLinkSecured,
		map[string]string{
			"service":     service,
			"stream_type": streamType,
		},
		map[string]any{"secure": secure},
		at,
	)
}

// WritePoint writes an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes an arbitrary point. A zero timestamp means now.
// Points written after Close are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
