// Package systemd reports daemon lifecycle to the service manager over the
// sd_notify socket. Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"log"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports lifecycle transitions to the service manager.
type Notifier interface {
	Ready(status string)
	Status(status string)
	Watchdog()
	Stopping()
}

// Daemon sends notifications with daemon.SdNotify.
type Daemon struct{}

// NewDaemon returns a Notifier bound to $NOTIFY_SOCKET.
func NewDaemon() *Daemon {
	return &Daemon{}
}

// Ready marks startup complete.
func (d *Daemon) Ready(status string) {
	d.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Status updates the free-form status line shown by systemctl.
func (d *Daemon) Status(status string) {
	d.send("STATUS=" + status)
}

// Watchdog pets the service watchdog.
func (d *Daemon) Watchdog() {
	d.send(daemon.SdNotifyWatchdog)
}

// Stopping marks the start of shutdown.
func (d *Daemon) Stopping() {
	d.send(daemon.SdNotifyStopping)
}

func (d *Daemon) send(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("sd_notify: %v", err)
	}
}

// WatchdogInterval returns how often Watchdog should be called, or 0 when
// the unit has no WatchdogSec configured.
func WatchdogInterval() time.Duration {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Printf("sd_watchdog: %v", err)
		return 0
	}
	return interval / 2
}
