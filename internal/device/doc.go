// Package device implements the message slot file operations.
//
// A File is one open handle on a device minor. It carries private session
// state (selected channel, censorship) and interprets Ioctl, Read and Write
// against the slot registry it was opened on. Files are not shared; slots
// and channels are.
package device
