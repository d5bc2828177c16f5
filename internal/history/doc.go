// Package history keeps a log of finished capture requests.
//
// Recorder is a capture.Observer: the coordinator hands it one outcome per
// request and Recorder writes them to the request_history table from its
// own goroutine, so a slow disk never stalls request handling. When the
// queue is full, outcomes are dropped and counted.
package history
