package config

import (
	"fmt"
	"os"
)

func Template(kind Kind) (string, error) {
	switch kind {
	case KindServer:
		return serverTemplate, nil
	case KindBot:
		return botTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path string, kind Kind, overwrite bool) error {
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

const serverTemplate = `addr = ":7777"
# admin_listen_addr = "127.0.0.1:7780"
node_name = "cardserver"
timeout = "10s"
retention = "2m"
reap_interval = "10s"
min_players = 2
auto_start_players = 0
outbound_queue = 64
`

const botTemplate = `addr = "127.0.0.1:7777"
name = "cardbot"
primary_color = "crimson"
secondary_color = "ivory"
avatar = "fox"
timeout = "10s"
max_connect_attempts = 5
think = "500ms"
call_bluffs = false
start_at = 2
matches = 0
`
