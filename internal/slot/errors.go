package slot

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Device error taxonomy. Every sentinel maps to exactly one errno.
var (
	ErrInvalidArgument = errors.New("msgslot: invalid argument")
	ErrMessageSize     = errors.New("msgslot: message size out of range")
	ErrNoSpace         = errors.New("msgslot: buffer smaller than message")
	ErrWouldBlock      = errors.New("msgslot: no message available")
	ErrNoMemory        = errors.New("msgslot: out of memory")
	ErrFault           = errors.New("msgslot: bad address")
	ErrNoDevice        = errors.New("msgslot: no such device")
	ErrBadHandle       = errors.New("msgslot: bad handle")
)

// Class groups sentinels into the failure categories callers branch on.
type Class string

const (
	ClassNone               Class = ""
	ClassInvalidArgument    Class = "invalid_argument"
	ClassSizeViolation      Class = "size_violation"
	ClassUnavailable        Class = "unavailable"
	ClassResourceExhaustion Class = "resource_exhaustion"
	ClassTransferFault      Class = "transfer_fault"
	ClassUnknown            Class = "unknown"
)

var errnoTable = []struct {
	err   error
	errno unix.Errno
	class Class
}{
	{ErrInvalidArgument, unix.EINVAL, ClassInvalidArgument},
	{ErrMessageSize, unix.EMSGSIZE, ClassSizeViolation},
	{ErrNoSpace, unix.ENOSPC, ClassSizeViolation},
	{ErrWouldBlock, unix.EWOULDBLOCK, ClassUnavailable},
	{ErrNoMemory, unix.ENOMEM, ClassResourceExhaustion},
	{ErrFault, unix.EFAULT, ClassTransferFault},
	{ErrNoDevice, unix.ENOENT, ClassInvalidArgument},
	{ErrBadHandle, unix.EBADF, ClassInvalidArgument},
}

// Errno returns the errno reported for err, or 0 when err is nil.
// Errors outside the taxonomy report EIO.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for _, entry := range errnoTable {
		if errors.Is(err, entry.err) {
			return entry.errno
		}
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// FromErrno restores the sentinel for errno. Unknown values come back as
// the raw unix.Errno.
func FromErrno(errno unix.Errno) error {
	if errno == 0 {
		return nil
	}
	for _, entry := range errnoTable {
		if entry.errno == errno {
			return entry.err
		}
	}
	return errno
}

// Classify reports the failure class of err.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	for _, entry := range errnoTable {
		if errors.Is(err, entry.err) {
			return entry.class
		}
	}
	return ClassUnknown
}
