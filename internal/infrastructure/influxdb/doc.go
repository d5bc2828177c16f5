// Package influxdb records capture activity in InfluxDB 2.x.
//
// Each finished request becomes a capture_request point tagged with its
// request type and result, so dashboards can chart grant and denial
// rates per service. Per-stream state transitions and capturing-link
// changes are written as capture_state and capture_link.
//
// Writes are non-blocking and batched by the client library. A failed
// batch is reported to the callback set with SetOnError.
package influxdb
