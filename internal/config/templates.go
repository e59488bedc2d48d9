package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes the commented default config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}

const Template = `[agent]
broker = "tcp://127.0.0.1:1883"
agent_id = "edge-01"
# client_id = "objctl-operator"  # random when unset
qos = 1
connect_timeout = "5s"
max_connect_attempts = 5

[dispatch]
timeout = "2m"  # "0s" waits indefinitely

[encoding]
wide_length = "units"  # "units" (UTF-16 code units) or "bytes"

[modules]
dir = "dist"
arch = "x64"

[log]
level = "info"
# file = "/var/log/objctl/objctl.log"
max_size_mb = 10
max_backups = 3

[metrics]
# addr = "127.0.0.1:9464"

[tasks.curl]
user_agent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0"
`
