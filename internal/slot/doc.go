// Package slot owns the message registry behind every device file.
//
// Ownership boundary:
// - slot registry keyed by device minor
// - per-slot channel registry keyed by channel id
// - message storage and the device error taxonomy
//
// Slots are created lazily on first open and live until Teardown. Each slot
// serializes channel creation and message copies behind its own mutex.
package slot
