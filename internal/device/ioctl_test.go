package device

import "testing"

func TestCommandNumbersMatchLinuxLayout(t *testing.T) {
	if CmdSetChannel != 0x4004eb00 {
		t.Fatalf("unexpected MSG_SLOT_CHANNEL=%#x", CmdSetChannel)
	}
	if CmdSetCensorship != 0x4004eb01 {
		t.Fatalf("unexpected MSG_SLOT_SET_CEN=%#x", CmdSetCensorship)
	}
	if IOW(MajorNum, 1, 4) != CmdSetCensorship {
		t.Fatalf("IOW disagrees with constant")
	}
	if CommandName(CmdSetChannel) != "set_channel" || CommandName(1) != "unknown" {
		t.Fatalf("unexpected command names")
	}
}

func TestMkdevRoundTrip(t *testing.T) {
	dev := Mkdev(MajorNum, 17)
	major, minor := Unmkdev(dev)
	if major != MajorNum || minor != 17 {
		t.Fatalf("unexpected split major=%d minor=%d", major, minor)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out of range minor")
		}
	}()
	Mkdev(MajorNum, MaxMinor+1)
}
