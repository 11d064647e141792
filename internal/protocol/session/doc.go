// Package session owns the client<->slotd wire session helpers.
//
// Ownership boundary:
// - hello/hello.ack control handshake
// - open/ioctl/read/write/release request codecs
// - result/error response codecs and errno restoration
// - connect timeouts and retry backoff
package session
