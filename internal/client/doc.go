// Package client talks to slotd over the framed session protocol and
// exposes remote device handles with the same error taxonomy as the
// in-process device.
package client
