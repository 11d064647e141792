package slot

// MaxMessageLen bounds every stored message.
const MaxMessageLen = 128

// Censor is written over every fourth byte of a censored message.
const Censor byte = '#'

// Channel holds the most recent message written to one channel id.
// A zero length means the channel has never been written.
type Channel struct {
	id      uint32
	message [MaxMessageLen]byte
	length  int
}

func newChannel(id uint32) *Channel {
	return &Channel{id: id}
}

// ID returns the channel id.
func (c *Channel) ID() uint32 {
	return c.id
}

// Len returns the stored message length.
func (c *Channel) Len() int {
	return c.length
}

// store replaces the message with msg. The caller holds the slot lock and
// has already checked 0 < len(msg) <= MaxMessageLen.
func (c *Channel) store(msg []byte) {
	c.length = copy(c.message[:], msg)
}

// load copies the stored message into dst and returns the count copied.
func (c *Channel) load(dst []byte) int {
	return copy(dst, c.message[:c.length])
}

// CensorMessage overwrites every byte at an index i with i%4 == 3.
func CensorMessage(msg []byte) {
	for i := 3; i < len(msg); i += 4 {
		msg[i] = Censor
	}
}
