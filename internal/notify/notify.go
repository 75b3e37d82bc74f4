// Package notify delivers desktop notifications through
// org.freedesktop.Notifications on the session bus.
package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	notifService = "org.freedesktop.Notifications"
	notifPath    = "/org/freedesktop/Notifications"
	notifIface   = "org.freedesktop.Notifications"

	appName = "keebat"
	appIcon = "battery-caution-symbolic"

	// expireTimeout is passed to the server in milliseconds. Battery alerts
	// are transient; the tray keeps showing the state afterwards.
	expireTimeout = int32(10000)
)

// Notifier sends alerts. It satisfies monitor.Notifier.
type Notifier struct {
	logger *logrus.Entry

	mu     sync.Mutex
	conn   *dbus.Conn
	lastID uint32
	closed bool
}

// New connects to the session bus. The notification daemon itself is only
// contacted per call, so a missing daemon surfaces as Notify errors, which
// the monitor logs and tolerates.
func New(logger *logrus.Logger) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &Notifier{
		logger: logger.WithField("component", "notify"),
		conn:   conn,
	}, nil
}

// Notify sends one notification. Each alert replaces the previous one so
// repeated low-battery warnings do not stack up in the shell.
func (n *Notifier) Notify(summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("notifier is closed")
	}

	hints := map[string]dbus.Variant{
		"transient": dbus.MakeVariant(true),
		"urgency":   dbus.MakeVariant(byte(1)),
	}

	var id uint32
	call := n.conn.Object(notifService, notifPath).Call(notifIface+".Notify", 0,
		appName, n.lastID, appIcon, summary, body,
		[]string{}, hints, expireTimeout)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("send desktop notification: %w", err)
	}
	n.lastID = id

	n.logger.WithFields(logrus.Fields{
		"id":      id,
		"summary": summary,
	}).Debug("Notification delivered")
	return nil
}

// Close drops the bus connection. Further Notify calls fail politely.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	if err := n.conn.Close(); err != nil {
		n.logger.WithError(err).Debug("Failed to close session bus connection")
	}
}
