package routeros

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexBool decodes RouterOS flags, which the REST API renders as "true"/"false"
// strings but which also show up as JSON booleans depending on version.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}

	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("flag is neither bool nor string: %s", data)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		*b = true
	case "false", "no", "":
		*b = false
	default:
		return fmt.Errorf("unrecognized flag value %q", s)
	}
	return nil
}

// ArpEntry is one row of /ip/arp.
type ArpEntry struct {
	ID         string   `json:".id"`
	Address    string   `json:"address"`
	MACAddress string   `json:"mac-address"`
	Interface  string   `json:"interface"`
	Disabled   FlexBool `json:"disabled"`
	Dynamic    FlexBool `json:"dynamic"`
	Comment    string   `json:"comment"`
}

// Lease is one row of /ip/dhcp-server/lease.
type Lease struct {
	ID             string `json:".id"`
	Address        string `json:"address"`
	MACAddress     string `json:"mac-address"`
	HostName       string `json:"host-name"`
	ActiveHostname string `json:"active-hostname"`
	Comment        string `json:"comment"`
	Status         string `json:"status"`
}

// HotspotSession is one row of /ip/hotspot/active.
type HotspotSession struct {
	ID         string `json:".id"`
	User       string `json:"user"`
	Address    string `json:"address"`
	MACAddress string `json:"mac-address"`
}

// LogRecord is one row of /log as the router returns it.
type LogRecord struct {
	ID      string `json:".id"`
	Time    string `json:"time"`
	Topics  string `json:"topics"`
	Message string `json:"message"`
}

// NormalizeMAC returns the canonical upper-case, colon separated form.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}

// MACSet is a set of canonical MAC addresses.
type MACSet map[string]struct{}

func NewMACSet(macs ...string) MACSet {
	s := make(MACSet, len(macs))
	for _, m := range macs {
		s.Add(m)
	}
	return s
}

func (s MACSet) Add(mac string) {
	if mac = NormalizeMAC(mac); mac != "" {
		s[mac] = struct{}{}
	}
}

func (s MACSet) Has(mac string) bool {
	_, ok := s[NormalizeMAC(mac)]
	return ok
}

func (s MACSet) Len() int { return len(s) }
