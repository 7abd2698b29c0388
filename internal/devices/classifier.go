package devices

import (
	"fmt"
	"net/netip"
	"strings"

	"netsentry/internal/config"
	"netsentry/internal/notifications"
	"netsentry/internal/routeros"
)

type Category string

const (
	CategoryTrusted       Category = "Trusted LAN"
	CategoryUpstream      Category = "Upstream Gateway"
	CategoryAuthenticated Category = "Authenticated User"
	CategoryLurker        Category = "Lurker"
	CategoryUnknown       Category = "Unknown Network"
)

// Classification is the verdict for one device.
type Classification struct {
	Category     Category               `json:"category"`
	Severity     notifications.Severity `json:"severity"`
	ShouldNotify bool                   `json:"should_notify"`
}

// prefix matches either a literal string prefix or a CIDR.
type prefix struct {
	literal string
	cidr    netip.Prefix
	isCIDR  bool
}

func parsePrefixes(raw []string) ([]prefix, error) {
	out := make([]prefix, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.Contains(r, "/") {
			p, err := netip.ParsePrefix(r)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", r, err)
			}
			out = append(out, prefix{cidr: p.Masked(), isCIDR: true})
			continue
		}
		out = append(out, prefix{literal: r})
	}
	return out, nil
}

func (p prefix) match(address string, parsed netip.Addr, parsedOK bool) bool {
	if p.isCIDR {
		return parsedOK && p.cidr.Contains(parsed)
	}
	return strings.HasPrefix(address, p.literal)
}

func matchAny(prefixes []prefix, address string, parsed netip.Addr, parsedOK bool) bool {
	for _, p := range prefixes {
		if p.match(address, parsed, parsedOK) {
			return true
		}
	}
	return false
}

// Classifier holds the configured rules. Classify has no side effects and is
// safe for concurrent use.
type Classifier struct {
	trusted  []prefix
	upstream []prefix
	guest    []prefix
	notify   map[Category]bool
}

func NewClassifier(cfg config.ClassificationConfig) (*Classifier, error) {
	trusted, err := parsePrefixes(cfg.TrustedPrefixes)
	if err != nil {
		return nil, fmt.Errorf("trusted prefixes: %w", err)
	}
	upstream, err := parsePrefixes(cfg.UpstreamPrefixes)
	if err != nil {
		return nil, fmt.Errorf("upstream prefixes: %w", err)
	}
	guest, err := parsePrefixes(cfg.GuestPrefixes)
	if err != nil {
		return nil, fmt.Errorf("guest prefixes: %w", err)
	}

	return &Classifier{
		trusted:  trusted,
		upstream: upstream,
		guest:    guest,
		notify: map[Category]bool{
			CategoryTrusted:       config.Enabled(cfg.Notify.Trusted),
			CategoryUpstream:      config.Enabled(cfg.Notify.Upstream),
			CategoryAuthenticated: config.Enabled(cfg.Notify.Authenticated),
			CategoryLurker:        config.Enabled(cfg.Notify.Lurker),
			CategoryUnknown:       config.Enabled(cfg.Notify.Unknown),
		},
	}, nil
}

// Classify applies the rules in order: trusted, upstream, guest (split on
// hotspot authentication), then unknown. First match wins.
func (c *Classifier) Classify(rec Record, authenticated routeros.MACSet) Classification {
	address := strings.TrimSpace(rec.Address)
	parsed, err := netip.ParseAddr(address)
	parsedOK := err == nil

	var category Category
	switch {
	case address == "":
		category = CategoryUnknown
	case matchAny(c.trusted, address, parsed, parsedOK):
		category = CategoryTrusted
	case matchAny(c.upstream, address, parsed, parsedOK):
		category = CategoryUpstream
	case matchAny(c.guest, address, parsed, parsedOK):
		if authenticated.Has(rec.MAC) {
			category = CategoryAuthenticated
		} else {
			category = CategoryLurker
		}
	default:
		category = CategoryUnknown
	}

	return Classification{
		Category:     category,
		Severity:     severityOf(category),
		ShouldNotify: c.notify[category],
	}
}

func severityOf(c Category) notifications.Severity {
	switch c {
	case CategoryTrusted, CategoryUpstream:
		return notifications.SeverityLow
	case CategoryAuthenticated:
		return notifications.SeverityNormal
	default:
		return notifications.SeverityCritical
	}
}

// Event builds the notification for a newly seen device.
func (cl Classification) Event(rec Record) notifications.Event {
	var title string
	switch cl.Category {
	case CategoryLurker:
		title = "Unauthenticated device on guest network"
	case CategoryUnknown:
		title = "Device on unknown network"
	case CategoryAuthenticated:
		title = "Hotspot user joined"
	default:
		title = "New device: " + string(cl.Category)
	}

	return notifications.Event{
		Title: title,
		Body: fmt.Sprintf("%s (%s) at %s on %s",
			rec.DisplayName, rec.MAC, orDash(rec.Address), orDash(rec.Interface)),
		Severity: cl.Severity,
		Category: string(cl.Category),
		Source:   rec.MAC,
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
