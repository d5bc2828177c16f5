// Package telemetry fans request events out of the coordinator.
//
// Fanout implements capture.Observer. Events are forwarded synchronously
// to chained observers (such as the history recorder) and queued for the
// slower sinks: MQTT, InfluxDB and the WebSocket hub. A full queue drops
// events rather than stalling the coordinator.
//
// HardwareWatcher is the inbound half. It listens for hot-plug
// announcements on MQTT, updates the device catalog and stops streams
// that were using an unplugged device.
package telemetry
