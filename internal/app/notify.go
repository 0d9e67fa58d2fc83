package app

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "orderbot/pkg/logx"
)

// sdNotify reports state to systemd when running under a Type=notify unit.
// Outside systemd it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func sdStatus(workers, pending int) string {
	return fmt.Sprintf("STATUS=%d bots, %d pending", workers, pending)
}
