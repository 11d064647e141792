// Package slotd hosts a message slot device behind a framed TCP endpoint.
//
// Ownership boundary:
// - device table (path -> minor) and its hot reload
// - connection accept loop and per-connection handle tables
// - request dispatch onto device handles
// - admin HTTP surface (health, readiness, metrics, devices, slots)
// - registry teardown on shutdown
package slotd
