package device

import (
	"fmt"
	"sync/atomic"

	"github.com/danmuck/msgslot/internal/observability"
	"github.com/danmuck/msgslot/internal/slot"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Device is the message slot driver bound to one registry.
type Device struct {
	major    uint32
	registry *slot.Registry
	open     atomic.Int64
}

// New binds a device with the given major number to registry.
func New(major uint32, registry *slot.Registry) *Device {
	if major == 0 {
		major = MajorNum
	}
	if registry == nil {
		registry = slot.NewRegistry(slot.Limits{})
	}
	return &Device{major: major, registry: registry}
}

// Major returns the device major number.
func (d *Device) Major() uint32 {
	return d.major
}

// Registry returns the slot registry backing this device.
func (d *Device) Registry() *slot.Registry {
	return d.registry
}

// OpenFiles returns the number of handles not yet closed.
func (d *Device) OpenFiles() int64 {
	return d.open.Load()
}

// Open creates a handle on minor, creating the slot on first access.
func (d *Device) Open(minor uint32) (*File, error) {
	if minor > MaxMinor {
		return nil, fmt.Errorf("%w: minor %d", slot.ErrNoDevice, minor)
	}
	if _, err := d.registry.GetOrCreate(minor); err != nil {
		observability.RecordDeviceOp("open", string(slot.Classify(err)), 0)
		log.Warn().Uint32("minor", minor).Err(err).Msg("device open failed")
		return nil, err
	}
	f := &File{
		dev:   d,
		id:    uuid.Must(uuid.NewV7()).String(),
		minor: minor,
	}
	d.open.Add(1)
	observability.AddOpenFiles(1)
	observability.RecordDeviceOp("open", "ok", 0)
	d.syncRegistryGauges()
	log.Debug().Str("handle", f.id).Uint32("minor", minor).Msg("device open")
	return f, nil
}

// Teardown frees every slot and channel. Open handles fail with
// ErrInvalidArgument afterwards.
func (d *Device) Teardown() {
	slots, channels := d.registry.Teardown()
	d.syncRegistryGauges()
	log.Info().
		Uint32("major", d.major).
		Int("slots", slots).
		Int("channels", channels).
		Int64("open_files", d.open.Load()).
		Msg("device teardown")
}

func (d *Device) release() {
	d.open.Add(-1)
	observability.AddOpenFiles(-1)
}

func (d *Device) syncRegistryGauges() {
	observability.SetRegistryCounts(d.registry.Counts())
}
