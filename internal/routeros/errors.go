package routeros

import "fmt"

// Data sources, used as FetchError.Source and as metric labels.
const (
	SourceARP     = "arp"
	SourceDHCP    = "dhcp"
	SourceHotspot = "hotspot"
	SourceLog     = "log"
)

// FetchError reports a failed read of one data source.
type FetchError struct {
	Source     string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
