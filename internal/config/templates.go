package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "slotd":
		return slotdTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const slotdTemplate = `name = "slotd"
listen_addr = "127.0.0.1:7235"
admin_addr = "127.0.0.1:7236"
admin_token = ""
# Informational: reported in the hello ack, /devices and device numbers.
# Ioctl command numbers are fixed to type 235 regardless of this value.
major = 235
max_slots = 0
max_channels = 0
cors_origins = ["http://localhost:3000"]
read_timeout = "60s"
write_timeout = "5s"

[[devices]]
path = "/dev/msgslot0"
minor = 0

[[devices]]
path = "/dev/msgslot1"
minor = 1
`

const clientTemplate = `addr = "127.0.0.1:7235"
connect_timeout = "2s"
max_attempts = 3
`
