package tray

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sirupsen/logrus"

	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
)

const (
	menuPath  = "/MenuBar"
	menuIface = "com.canonical.dbusmenu"

	// Fixed item ids: 0 is the dbusmenu root, status rows count up from 1.
	menuRootID      = 0
	menuSeparatorID = 98
	menuQuitID      = 99
)

// menuLayout is the dbusmenu (ia{sv}av) recursive layout node.
type menuLayout struct {
	ID         int32
	Properties map[string]dbus.Variant
	Children   []dbus.Variant
}

// menuItemProps pairs an item id with its properties, dbusmenu (ia{sv}).
type menuItemProps struct {
	ID         int32
	Properties map[string]dbus.Variant
}

// menu exports the com.canonical.dbusmenu object backing the tray icon's
// context menu: one disabled status row per device, a separator, and Quit.
type menu struct {
	conn   *dbus.Conn
	logger *logrus.Entry
	onQuit func()

	mu       sync.Mutex
	rows     []string
	revision uint32
}

func newMenu(conn *dbus.Conn, logger *logrus.Entry, onQuit func()) *menu {
	return &menu{conn: conn, logger: logger, onQuit: onQuit}
}

func (m *menu) export() error {
	if err := m.conn.Export(m, menuPath, menuIface); err != nil {
		return fmt.Errorf("export dbusmenu object: %w", err)
	}

	props := prop.Map{
		menuIface: {
			"Version":       {Value: uint32(3), Emit: prop.EmitConst},
			"TextDirection": {Value: "ltr", Emit: prop.EmitConst},
			"Status":        {Value: "normal", Emit: prop.EmitTrue},
			"IconThemePath": {Value: []string{}, Emit: prop.EmitConst},
		},
	}
	if _, err := prop.Export(m.conn, menuPath, props); err != nil {
		return fmt.Errorf("export dbusmenu properties: %w", err)
	}

	node := &introspect.Node{
		Name: menuPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: menuIface,
				Methods: []introspect.Method{
					{Name: "GetLayout", Args: []introspect.Arg{
						{Name: "parentId", Type: "i", Direction: "in"},
						{Name: "recursionDepth", Type: "i", Direction: "in"},
						{Name: "propertyNames", Type: "as", Direction: "in"},
						{Name: "revision", Type: "u", Direction: "out"},
						{Name: "layout", Type: "(ia{sv}av)", Direction: "out"},
					}},
					{Name: "GetGroupProperties", Args: []introspect.Arg{
						{Name: "ids", Type: "ai", Direction: "in"},
						{Name: "propertyNames", Type: "as", Direction: "in"},
						{Name: "properties", Type: "a(ia{sv})", Direction: "out"},
					}},
					{Name: "GetProperty", Args: []introspect.Arg{
						{Name: "id", Type: "i", Direction: "in"},
						{Name: "name", Type: "s", Direction: "in"},
						{Name: "value", Type: "v", Direction: "out"},
					}},
					{Name: "Event", Args: []introspect.Arg{
						{Name: "id", Type: "i", Direction: "in"},
						{Name: "eventId", Type: "s", Direction: "in"},
						{Name: "data", Type: "v", Direction: "in"},
						{Name: "timestamp", Type: "u", Direction: "in"},
					}},
					{Name: "AboutToShow", Args: []introspect.Arg{
						{Name: "id", Type: "i", Direction: "in"},
						{Name: "needUpdate", Type: "b", Direction: "out"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "LayoutUpdated", Args: []introspect.Arg{
						{Name: "revision", Type: "u"},
						{Name: "parent", Type: "i"},
					}},
					{Name: "ItemsPropertiesUpdated", Args: []introspect.Arg{
						{Name: "updatedProps", Type: "a(ia{sv})"},
						{Name: "removedProps", Type: "a(ias)"},
					}},
				},
			},
		},
	}
	if err := m.conn.Export(introspect.NewIntrospectable(node), menuPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export dbusmenu introspection: %w", err)
	}
	return nil
}

// update replaces the status rows and tells hosts to re-fetch the layout.
func (m *menu) update(rows []string) {
	m.mu.Lock()
	m.rows = rows
	m.revision++
	rev := m.revision
	m.mu.Unlock()

	if err := m.conn.Emit(menuPath, menuIface+".LayoutUpdated", rev, int32(menuRootID)); err != nil {
		m.logger.WithError(err).Debug("Failed to signal menu layout update")
	}
}

// menuRows renders the per-device status rows.
func menuRows(snap monitor.Snapshot) []string {
	rows := make([]string, 0, len(snap.Devices))
	for _, dev := range snap.Devices {
		rows = append(rows, statusRow(dev))
	}
	return rows
}

// statusRow renders one per-device menu row.
func statusRow(dev monitor.DeviceStatus) string {
	parts := make([]string, 0, len(dev.Halves))
	for _, h := range dev.Halves {
		if h.Known() {
			parts = append(parts, fmt.Sprintf("%s %d%%", h.Label, h.Level))
		} else {
			parts = append(parts, h.Label+" --")
		}
	}
	body := strings.Join(parts, ", ")
	if body == "" {
		body = "--"
	}

	switch dev.State {
	case monitor.StateConnected:
	case monitor.StateScanning, monitor.StateConnecting:
		body += " (searching)"
	case monitor.StateRetrying:
		body += " (reconnecting)"
	default:
		if dev.LastError != "" {
			body += " (unavailable)"
		} else {
			body += " (off)"
		}
	}
	return dev.Name + ": " + body
}

// escapeLabel doubles underscores so device names are not taken for
// dbusmenu mnemonics.
func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "_", "__")
}

// buildLayout assembles the full menu tree for the current status rows.
func buildLayout(rows []string) menuLayout {
	children := make([]dbus.Variant, 0, len(rows)+2)
	for i, row := range rows {
		children = append(children, dbus.MakeVariant(menuLayout{
			ID: int32(i + 1),
			Properties: map[string]dbus.Variant{
				"label":   dbus.MakeVariant(escapeLabel(row)),
				"enabled": dbus.MakeVariant(false),
			},
		}))
	}
	children = append(children, dbus.MakeVariant(menuLayout{
		ID: menuSeparatorID,
		Properties: map[string]dbus.Variant{
			"type": dbus.MakeVariant("separator"),
		},
	}))
	children = append(children, dbus.MakeVariant(menuLayout{
		ID: menuQuitID,
		Properties: map[string]dbus.Variant{
			"label":   dbus.MakeVariant("Quit"),
			"enabled": dbus.MakeVariant(true),
		},
	}))

	return menuLayout{
		ID: menuRootID,
		Properties: map[string]dbus.Variant{
			"children-display": dbus.MakeVariant("submenu"),
		},
		Children: children,
	}
}

func (m *menu) currentRows() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rows...)
}

// GetLayout implements com.canonical.dbusmenu.GetLayout. The whole tree is
// one level deep, so depth and property filters are not worth honoring.
func (m *menu) GetLayout(parentID int32, recursionDepth int32, propertyNames []string) (uint32, menuLayout, *dbus.Error) {
	m.mu.Lock()
	rev := m.revision
	rows := append([]string(nil), m.rows...)
	m.mu.Unlock()

	layout := buildLayout(rows)
	if parentID != menuRootID {
		if sub, ok := findNode(layout, parentID); ok {
			return rev, sub, nil
		}
		return rev, menuLayout{ID: parentID, Properties: map[string]dbus.Variant{}}, nil
	}
	return rev, layout, nil
}

func findNode(node menuLayout, id int32) (menuLayout, bool) {
	if node.ID == id {
		return node, true
	}
	for _, child := range node.Children {
		if sub, ok := child.Value().(menuLayout); ok {
			if found, ok := findNode(sub, id); ok {
				return found, true
			}
		}
	}
	return menuLayout{}, false
}

// GetGroupProperties implements com.canonical.dbusmenu.GetGroupProperties.
func (m *menu) GetGroupProperties(ids []int32, propertyNames []string) ([]menuItemProps, *dbus.Error) {
	layout := buildLayout(m.currentRows())

	var out []menuItemProps
	appendNode := func(node menuLayout) {
		out = append(out, menuItemProps{ID: node.ID, Properties: node.Properties})
	}
	var walk func(menuLayout)
	walk = func(node menuLayout) {
		if len(ids) == 0 || containsID(ids, node.ID) {
			appendNode(node)
		}
		for _, child := range node.Children {
			if sub, ok := child.Value().(menuLayout); ok {
				walk(sub)
			}
		}
	}
	walk(layout)
	return out, nil
}

func containsID(ids []int32, id int32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// GetProperty implements com.canonical.dbusmenu.GetProperty.
func (m *menu) GetProperty(id int32, name string) (dbus.Variant, *dbus.Error) {
	layout := buildLayout(m.currentRows())
	if node, ok := findNode(layout, id); ok {
		if v, ok := node.Properties[name]; ok {
			return v, nil
		}
	}
	return dbus.Variant{}, dbus.NewError("com.canonical.dbusmenu.Error.UnknownProperty", nil)
}

// Event implements com.canonical.dbusmenu.Event. Only Quit does anything.
func (m *menu) Event(id int32, eventID string, data dbus.Variant, timestamp uint32) *dbus.Error {
	if eventID != "clicked" || id != menuQuitID {
		return nil
	}
	m.logger.Info("Quit selected from tray menu")
	if m.onQuit != nil {
		// Never block the bus dispatch goroutine
		go m.onQuit()
	}
	return nil
}

// AboutToShow implements com.canonical.dbusmenu.AboutToShow.
func (m *menu) AboutToShow(id int32) (bool, *dbus.Error) {
	return false, nil
}
