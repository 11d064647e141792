package device

import "fmt"

const (
	// MajorNum is the major number message slot devices register under.
	MajorNum uint32 = 235

	minorBits        = 20
	MaxMinor  uint32 = 1<<minorBits - 1
)

// Mkdev packs a major/minor pair the way the kernel's MKDEV does.
func Mkdev(major, minor uint32) uint32 {
	if minor > MaxMinor {
		panic(fmt.Sprintf("device: minor %d out of range", minor))
	}
	return major<<minorBits | minor
}

// Unmkdev splits a device number produced by Mkdev.
func Unmkdev(dev uint32) (major, minor uint32) {
	return dev >> minorBits, dev & MaxMinor
}
