// Package hardware provides the device side of the capture service:
// simulated device managers that open and close sessions, and enumerators
// that list what can be captured.
//
// Nothing here touches frames. A Manager tracks sessions and reports their
// lifecycle to a Listener, normally the capture coordinator. Catalog lists
// devices and screens from configuration; PionEnumerator lists whatever the
// pion/mediadevices drivers linked into the binary can see.
package hardware
