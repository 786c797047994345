package dbus

import (
	"encoding/json"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"
)

// Client talks to a running agent.
type Client struct {
	obj godbus.BusObject
}

// NewClient returns a client using conn, normally the session bus.
func NewClient(conn *godbus.Conn) *Client {
	return &Client{obj: conn.Object(BusName, ObjPath)}
}

func (c *Client) GetCurrentStats() (*CurrentStats, error) {
	var stats CurrentStats
	if err := c.callJSON("GetCurrentStats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) GetStatus() (*Status, error) {
	var st Status
	if err := c.callJSON("GetStatus", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) GetRuns(from, to time.Time) (*History, error) {
	var h History
	if err := c.callJSON("GetRuns", &h, from.Unix(), to.Unix()); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Refresh() error {
	if err := c.obj.Call(IfaceName+".Refresh", 0).Err; err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

func (c *Client) callJSON(method string, out any, args ...any) error {
	var jsonStr string
	if err := c.obj.Call(IfaceName+"."+method, 0, args...).Store(&jsonStr); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}
