package device

// Ioctl numbers follow the asm-generic _IOC layout:
// dir(2) | size(14) | type(8) | nr(8).
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocWrite uint32 = 1

	uintSize uint32 = 4
)

// IOW builds a write-direction ioctl command number.
func IOW(typ, nr, size uint32) uint32 {
	return iocWrite<<iocDirShift | size<<iocSizeShift | typ<<iocTypeShift | nr<<iocNRShift
}

// Command numbers always carry MajorNum as their type byte. A device
// registered under a different major still accepts these same numbers.
const (
	// CmdSetChannel selects the channel id for subsequent reads and writes.
	CmdSetChannel = iocWrite<<iocDirShift | uintSize<<iocSizeShift | MajorNum<<iocTypeShift | 0<<iocNRShift
	// CmdSetCensorship toggles censorship for subsequent writes; arg is 0 or 1.
	CmdSetCensorship = iocWrite<<iocDirShift | uintSize<<iocSizeShift | MajorNum<<iocTypeShift | 1<<iocNRShift
)

// CommandName returns a readable name for cmd, used in logs and metrics.
func CommandName(cmd uint32) string {
	switch cmd {
	case CmdSetChannel:
		return "set_channel"
	case CmdSetCensorship:
		return "set_censorship"
	default:
		return "unknown"
	}
}
