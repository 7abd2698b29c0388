// internal/routeros/client.go - RouterOS v7 REST API client
package routeros

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"netsentry/internal/config"
	"netsentry/internal/logwatch"
)

const (
	UserAgent = "netsentry/1.0"

	pathARP     = "/ip/arp"
	pathLeases  = "/ip/dhcp-server/lease"
	pathHotspot = "/ip/hotspot/active"
	pathLog     = "/log"

	maxErrorBody = 512
)

// Client reads the ARP table, DHCP leases, hotspot sessions and system log
// from one router. It requires the www-ssl (or www) service on the router.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient builds a client for cfg. Every request is bounded by timeout.
func NewClient(cfg config.RouterConfig, timeout time.Duration) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.Scheme == "https" {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.InsecureSkipVerify {
			tlsConfig.InsecureSkipVerify = true //nolint:gosec // opt-in for self-signed router certificates
		}
		if cfg.CertPath != "" {
			pem, err := os.ReadFile(cfg.CertPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read router certificate: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no PEM certificates found in %s", cfg.CertPath)
			}
			tlsConfig.RootCAs = pool
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL:  cfg.BaseURL(),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// FetchArpTable returns every ARP entry, disabled ones included; filtering is
// left to the device resolver.
func (c *Client) FetchArpTable(ctx context.Context) ([]ArpEntry, error) {
	raw, err := c.get(ctx, SourceARP, pathARP)
	if err != nil {
		return nil, err
	}

	entries := make([]ArpEntry, 0, len(raw))
	for i, item := range raw {
		var entry ArpEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			skipMalformed(SourceARP, i, err)
			continue
		}
		entry.MACAddress = NormalizeMAC(entry.MACAddress)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Client) FetchDhcpLeases(ctx context.Context) ([]Lease, error) {
	raw, err := c.get(ctx, SourceDHCP, pathLeases)
	if err != nil {
		return nil, err
	}

	leases := make([]Lease, 0, len(raw))
	for i, item := range raw {
		var lease Lease
		if err := json.Unmarshal(item, &lease); err != nil {
			skipMalformed(SourceDHCP, i, err)
			continue
		}
		lease.MACAddress = NormalizeMAC(lease.MACAddress)
		if lease.MACAddress == "" {
			continue
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

// FetchHotspotActive returns the MACs holding an authenticated hotspot session.
func (c *Client) FetchHotspotActive(ctx context.Context) (MACSet, error) {
	raw, err := c.get(ctx, SourceHotspot, pathHotspot)
	if err != nil {
		return nil, err
	}

	set := NewMACSet()
	for i, item := range raw {
		var session HotspotSession
		if err := json.Unmarshal(item, &session); err != nil {
			skipMalformed(SourceHotspot, i, err)
			continue
		}
		set.Add(session.MACAddress)
	}
	return set, nil
}

// FetchSystemLog returns the router's log buffer oldest-first, as the router
// orders it.
func (c *Client) FetchSystemLog(ctx context.Context) ([]logwatch.Entry, error) {
	raw, err := c.get(ctx, SourceLog, pathLog)
	if err != nil {
		return nil, err
	}

	entries := make([]logwatch.Entry, 0, len(raw))
	for i, item := range raw {
		var rec LogRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			skipMalformed(SourceLog, i, err)
			continue
		}
		if rec.ID == "" {
			skipMalformed(SourceLog, i, errors.New("missing .id"))
			continue
		}
		entries = append(entries, logwatch.Entry{
			ID:      rec.ID,
			Time:    rec.Time,
			Topics:  splitTopics(rec.Topics),
			Message: rec.Message,
		})
	}
	return entries, nil
}

func (c *Client) get(ctx context.Context, source, path string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FetchError{
			Source:     source,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, &FetchError{Source: source, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	logrus.WithFields(logrus.Fields{
		"source": source,
		"count":  len(items),
	}).Debug("Fetched router data")

	return items, nil
}

func skipMalformed(source string, index int, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"source": source,
		"index":  index,
	}).Debug("Skipping malformed record")
}

func splitTopics(topics string) []string {
	if topics == "" {
		return nil
	}
	parts := strings.Split(topics, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
