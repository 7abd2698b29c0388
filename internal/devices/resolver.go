// Package devices turns router snapshots into device records and decides
// which of them are new and how far they can be trusted.
package devices

import (
	"netsentry/internal/routeros"
)

const UnknownName = "Unknown"

// Record is one endpoint seen in the ARP table during a single poll cycle.
type Record struct {
	MAC         string `json:"mac"`
	Address     string `json:"address"`
	Interface   string `json:"interface"`
	Disabled    bool   `json:"disabled"`
	DisplayName string `json:"display_name"`
}

// Resolve merges one ARP snapshot with one DHCP lease snapshot. Disabled
// entries and entries without a MAC are dropped; ARP order is kept.
func Resolve(arp []routeros.ArpEntry, leases []routeros.Lease) []Record {
	byMAC := make(map[string]routeros.Lease, len(leases))
	for _, lease := range leases {
		mac := routeros.NormalizeMAC(lease.MACAddress)
		if mac == "" {
			continue
		}
		byMAC[mac] = lease
	}

	records := make([]Record, 0, len(arp))
	for _, entry := range arp {
		if entry.Disabled {
			continue
		}
		mac := routeros.NormalizeMAC(entry.MACAddress)
		if mac == "" {
			continue
		}

		lease, hasLease := byMAC[mac]
		records = append(records, Record{
			MAC:         mac,
			Address:     entry.Address,
			Interface:   entry.Interface,
			DisplayName: displayName(entry, lease, hasLease),
		})
	}
	return records
}

func displayName(entry routeros.ArpEntry, lease routeros.Lease, hasLease bool) string {
	if entry.Comment != "" {
		return entry.Comment
	}
	if hasLease {
		for _, name := range []string{lease.HostName, lease.ActiveHostname, lease.Comment} {
			if name != "" {
				return name
			}
		}
	}
	return UnknownName
}
