// Package tray renders battery snapshots as a StatusNotifierItem on the
// session bus, with a dbusmenu context menu (status rows plus Quit). The
// tray is a monitor.Sink: all updates arrive serialized on the monitor's
// publish goroutine, the bus side only ever reads.
package tray

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
	"github.com/Cirius1792/split-keeb-battery/pkg/config"
)

const (
	watcherName  = "org.kde.StatusNotifierWatcher"
	watcherPath  = "/StatusNotifierWatcher"
	watcherIface = "org.kde.StatusNotifierWatcher"

	itemPath  = "/StatusNotifierItem"
	itemIface = "org.kde.StatusNotifierItem"
)

// ErrWatcherUnavailable means no StatusNotifierWatcher owns its well-known
// name, so there is nothing to register a tray icon with. Callers fall back
// to a LogSink.
var ErrWatcherUnavailable = errors.New("no StatusNotifierWatcher on the session bus")

// sniTooltip is the StatusNotifierItem ToolTip wire struct (s a(iiay) s s).
type sniTooltip struct {
	IconName string
	Pixmaps  []sniPixmap
	Title    string
	Text     string
}

type sniPixmap struct {
	Width  int32
	Height int32
	Bytes  []byte
}

// Tray owns the StatusNotifierItem registration and its menu.
type Tray struct {
	logger *logrus.Entry
	conn   *dbus.Conn
	props  *prop.Properties
	menu   *menu
	title  string
	low    int
	onQuit func()

	mu      sync.Mutex
	busName string
	lastKey string
	closed  bool
}

// New connects to the session bus, exports the item and menu objects, and
// registers with the StatusNotifierWatcher. Returns ErrWatcherUnavailable
// (wrapped) when no watcher is running; the caller decides how headless to
// be about it. onQuit runs when the user picks Quit from the menu.
func New(cfg *config.Config, logger *logrus.Logger, onQuit func()) (*Tray, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	t := &Tray{
		logger: logger.WithField("component", "tray"),
		conn:   conn,
		title:  cfg.Tray.Title,
		low:    cfg.Battery.LowThreshold,
		onQuit: onQuit,
	}
	if err := t.setup(); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tray) setup() error {
	if !t.watcherPresent() {
		return ErrWatcherUnavailable
	}

	t.menu = newMenu(t.conn, t.logger, t.onQuit)
	if err := t.menu.export(); err != nil {
		return err
	}
	if err := t.exportItem(); err != nil {
		return err
	}

	name := fmt.Sprintf("org.kde.StatusNotifierItem-%d-1", os.Getpid())
	reply, err := t.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already owned", name)
	}
	t.busName = name

	call := t.conn.Object(watcherName, watcherPath).Call(watcherIface+".RegisterStatusNotifierItem", 0, name)
	if call.Err != nil {
		return fmt.Errorf("register with StatusNotifierWatcher: %w", call.Err)
	}

	t.logger.WithField("bus_name", name).Info("System tray item registered")
	return nil
}

func (t *Tray) watcherPresent() bool {
	var owned bool
	err := t.conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, watcherName).Store(&owned)
	if err != nil {
		t.logger.WithError(err).Debug("NameHasOwner check failed")
		return false
	}
	return owned
}

func (t *Tray) exportItem() error {
	if err := t.conn.Export(&sniItem{logger: t.logger}, itemPath, itemIface); err != nil {
		return fmt.Errorf("export tray item: %w", err)
	}

	propsSpec := prop.Map{
		itemIface: {
			"Category":          {Value: "Hardware", Emit: prop.EmitConst},
			"Id":                {Value: "keebat", Emit: prop.EmitConst},
			"Title":             {Value: t.title, Emit: prop.EmitTrue},
			"Status":            {Value: "Active", Emit: prop.EmitTrue},
			"IconName":          {Value: IconName(monitor.LevelUnknown, t.low), Emit: prop.EmitTrue},
			"AttentionIconName": {Value: "battery-caution-symbolic", Emit: prop.EmitConst},
			"ToolTip":           {Value: sniTooltip{Pixmaps: []sniPixmap{}, Title: t.title}, Emit: prop.EmitTrue},
			"Menu":              {Value: dbus.ObjectPath(menuPath), Emit: prop.EmitConst},
			"ItemIsMenu":        {Value: false, Emit: prop.EmitConst},
		},
	}
	props, err := prop.Export(t.conn, itemPath, propsSpec)
	if err != nil {
		return fmt.Errorf("export tray item properties: %w", err)
	}
	t.props = props

	node := &introspect.Node{
		Name: itemPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: itemIface,
				Methods: []introspect.Method{
					{Name: "Activate", Args: []introspect.Arg{
						{Name: "x", Type: "i", Direction: "in"},
						{Name: "y", Type: "i", Direction: "in"},
					}},
					{Name: "SecondaryActivate", Args: []introspect.Arg{
						{Name: "x", Type: "i", Direction: "in"},
						{Name: "y", Type: "i", Direction: "in"},
					}},
					{Name: "ContextMenu", Args: []introspect.Arg{
						{Name: "x", Type: "i", Direction: "in"},
						{Name: "y", Type: "i", Direction: "in"},
					}},
					{Name: "Scroll", Args: []introspect.Arg{
						{Name: "delta", Type: "i", Direction: "in"},
						{Name: "orientation", Type: "s", Direction: "in"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "NewIcon"},
					{Name: "NewToolTip"},
					{Name: "NewTitle"},
					{Name: "NewStatus", Args: []introspect.Arg{{Name: "status", Type: "s"}}},
				},
			},
		},
	}
	if err := t.conn.Export(introspect.NewIntrospectable(node), itemPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export tray item introspection: %w", err)
	}
	return nil
}

// Publish implements monitor.Sink: icon, status, tooltip, and menu rows all
// derive from the snapshot. Unchanged renders are skipped to keep the bus
// quiet across poll ticks.
func (t *Tray) Publish(snap monitor.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	min := snap.MinLevel()
	icon := IconName(min, t.low)
	status := "Active"
	if min != monitor.LevelUnknown && min <= t.low {
		status = "NeedsAttention"
	}
	text := strings.Join(TooltipLines(snap), "\n")
	rows := menuRows(snap)

	key := icon + "\x00" + status + "\x00" + text + "\x00" + strings.Join(rows, "\x01")
	if key == t.lastKey {
		return
	}
	t.lastKey = key

	t.props.SetMust(itemIface, "IconName", icon)
	t.props.SetMust(itemIface, "Status", status)
	t.props.SetMust(itemIface, "ToolTip", sniTooltip{
		Pixmaps: []sniPixmap{},
		Title:   t.title,
		Text:    text,
	})
	t.emit(itemIface+".NewIcon")
	t.emit(itemIface+".NewToolTip")
	t.emit(itemIface+".NewStatus", status)

	t.menu.update(rows)
}

func (t *Tray) emit(name string, values ...interface{}) {
	if err := t.conn.Emit(itemPath, name, values...); err != nil {
		t.logger.WithError(err).WithField("signal", name).Debug("Signal emission failed")
	}
}

// Close releases the bus name and drops the connection; the host removes
// the icon when the name vanishes.
func (t *Tray) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	busName := t.busName
	t.mu.Unlock()

	if busName != "" {
		if _, err := t.conn.ReleaseName(busName); err != nil {
			t.logger.WithError(err).Debug("Failed to release bus name")
		}
	}
	if err := t.conn.Close(); err != nil {
		t.logger.WithError(err).Debug("Failed to close session bus connection")
	}
	t.logger.Debug("Tray closed")
}

// sniItem receives the StatusNotifierItem activation methods. Everything
// the item can do lives in the menu, so these only acknowledge.
type sniItem struct {
	logger *logrus.Entry
}

func (s *sniItem) Activate(x, y int32) *dbus.Error {
	s.logger.Debug("Tray icon activated")
	return nil
}

func (s *sniItem) SecondaryActivate(x, y int32) *dbus.Error {
	return nil
}

func (s *sniItem) ContextMenu(x, y int32) *dbus.Error {
	return nil
}

func (s *sniItem) Scroll(delta int32, orientation string) *dbus.Error {
	return nil
}

// LogSink is the headless stand-in when no watcher is on the bus: it logs
// the rendered battery line whenever it changes. Calls arrive on the
// monitor's publish goroutine, matching the Sink contract.
type LogSink struct {
	logger *logrus.Entry
	last   string
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger.WithField("component", "tray")}
}

func (s *LogSink) Publish(snap monitor.Snapshot) {
	line := strings.Join(TooltipLines(snap), "; ")
	if line == s.last {
		return
	}
	s.last = line
	s.logger.WithField("battery", line).Info("Battery status")
}
