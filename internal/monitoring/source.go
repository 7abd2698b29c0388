package monitoring

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"netsentry/internal/logwatch"
	"netsentry/internal/routeros"
)

// Source is the router data the engine polls. *routeros.Client implements it.
type Source interface {
	FetchArpTable(ctx context.Context) ([]routeros.ArpEntry, error)
	FetchDhcpLeases(ctx context.Context) ([]routeros.Lease, error)
	FetchHotspotActive(ctx context.Context) (routeros.MACSet, error)
	FetchSystemLog(ctx context.Context) ([]logwatch.Entry, error)
}

// fetchResult is one cycle's worth of router data. A failed source leaves
// its field empty and its error set.
type fetchResult struct {
	arp        []routeros.ArpEntry
	leases     []routeros.Lease
	hotspot    routeros.MACSet
	logs       []logwatch.Entry
	arpErr     error
	leasesErr  error
	hotspotErr error
	logErr     error
}

func (r *fetchResult) errors() map[string]string {
	out := make(map[string]string)
	for source, err := range map[string]error{
		routeros.SourceARP:     r.arpErr,
		routeros.SourceDHCP:    r.leasesErr,
		routeros.SourceHotspot: r.hotspotErr,
		routeros.SourceLog:     r.logErr,
	} {
		if err != nil {
			out[source] = err.Error()
		}
	}
	return out
}

// fetchAll issues the requested fetches concurrently, each bounded by the
// fetch timeout. Failures never cancel the sibling fetches.
func (e *Engine) fetchAll(ctx context.Context, withHotspot, withLog bool) *fetchResult {
	res := &fetchResult{}
	var g errgroup.Group

	g.Go(func() error {
		fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
		res.arp, res.arpErr = e.source.FetchArpTable(fctx)
		return nil
	})
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
		res.leases, res.leasesErr = e.source.FetchDhcpLeases(fctx)
		return nil
	})
	if withHotspot {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
			defer cancel()
			res.hotspot, res.hotspotErr = e.source.FetchHotspotActive(fctx)
			return nil
		})
	}
	if withLog {
		g.Go(func() error {
			res.logs, res.logErr = e.fetchLog(ctx)
			return nil
		})
	}
	_ = g.Wait()

	e.reportFetchError(routeros.SourceARP, res.arpErr)
	e.reportFetchError(routeros.SourceDHCP, res.leasesErr)
	e.reportFetchError(routeros.SourceHotspot, res.hotspotErr)
	e.reportFetchError(routeros.SourceLog, res.logErr)

	// Degrade failed sources to empty.
	if res.leasesErr != nil {
		res.leases = nil
	}
	if res.hotspotErr != nil || res.hotspot == nil {
		res.hotspot = routeros.NewMACSet()
	}
	if res.logErr != nil {
		res.logs = nil
	}
	return res
}

func (e *Engine) fetchLog(ctx context.Context) ([]logwatch.Entry, error) {
	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	return e.source.FetchSystemLog(fctx)
}

func (e *Engine) reportFetchError(source string, err error) {
	if err == nil {
		return
	}
	e.metrics.RecordFetchError(source)
	logrus.WithError(err).WithField("source", source).Warn("Router fetch failed, treating source as empty this cycle")
}
