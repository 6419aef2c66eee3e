package lifecycle

import (
	"context"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitManager restarts and inspects systemd units over D-Bus.
type UnitManager struct {
	conn *dbus.Conn
}

// NewUnitManager connects to the user or system service manager.
func NewUnitManager(ctx context.Context, user bool) (*UnitManager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &UnitManager{conn: conn}, nil
}

// UnitStatus returns the ActiveState of a unit.
func (m *UnitManager) UnitStatus(ctx context.Context, name string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, name, "ActiveState")
	if err != nil {
		return "", err
	}
	return prop.Value.String(), nil
}

// RestartUnit restarts a unit using the replace mode.
func (m *UnitManager) RestartUnit(ctx context.Context, name string) error {
	_, err := m.conn.RestartUnitContext(ctx, name, "replace", nil)
	return err
}

// Close closes the D-Bus connection.
func (m *UnitManager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
