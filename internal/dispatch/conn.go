/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"github.com/acronis/go-batchproxy/httpclient"
	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/internal/buildinfo"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/netutil"
)

// RequestType is used in downstream request logs and metrics.
const RequestType = "proxy"

// Conn is a reusable downstream connection handle.
// It owns a transport that keeps at most one connection per host, so a checked out Conn
// never opens more than one parallel downstream connection.
type Conn struct {
	ID        string
	CreatedAt time.Time

	client    *http.Client
	transport *http.Transport
}

// Close closes the idle connections of the handle.
func (c *Conn) Close() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// ConnFactoryOpts represents options for ConnFactory.
type ConnFactoryOpts struct {
	// CreateRate limits the number of created connections per second. Zero means no limit.
	CreateRate  float64
	CreateBurst int
	// Collector is used for downstream request metrics. Metrics are not collected when it's nil.
	Collector httpclient.MetricsCollector
}

// ConnFactory creates Conn handles for the connection pool.
type ConnFactory struct {
	cfg      *Config
	resolver *net.Resolver
	limiter  *rate.Limiter
	// requestLimiter is the downstream request budget shared by all handles of the factory.
	requestLimiter *rate.Limiter
	collector      httpclient.MetricsCollector
	logger         log.FieldLogger
}

// NewConnFactory creates a new ConnFactory.
func NewConnFactory(cfg *Config, logger log.FieldLogger, opts ConnFactoryOpts) *ConnFactory {
	f := &ConnFactory{
		cfg:       cfg,
		resolver:  netutil.NewCustomDNSResolver(cfg.DNSServers, time.Duration(cfg.DNSTimeout)),
		collector: opts.Collector,
		logger:    logger,
	}
	if cfg.Client.RateLimits.Enabled {
		f.requestLimiter = cfg.Client.RateLimits.NewLimiter()
	}
	if opts.CreateRate > 0 {
		burst := opts.CreateBurst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.CreateRate), burst)
	}
	return f
}

// New creates a new Conn. It waits for the creation rate limiter if one is configured.
// It matches the connpool.Factory signature.
func (f *ConnFactory) New(ctx context.Context) (*Conn, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for connection creation: %w", err)
		}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(f.cfg.ConnectTimeout),
			KeepAlive: 30 * time.Second,
			Resolver:  f.resolver,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
		MaxConnsPerHost:       1,
		IdleConnTimeout:       time.Duration(f.cfg.IdleConnTimeout),
		TLSHandshakeTimeout:   time.Duration(f.cfg.ConnectTimeout),
		ExpectContinueTimeout: time.Second,
	}

	userAgent := f.cfg.UserAgent
	if userAgent == "" {
		userAgent = buildinfo.UserAgent()
	}
	client, err := httpclient.NewWithOpts(&f.cfg.Client, httpclient.Opts{
		UserAgent:      userAgent,
		RequestType:    RequestType,
		Delegate:       transport,
		LoggerProvider: middleware.GetLoggerFromContext,
		Collector:      f.collector,
		RateLimiter:    f.requestLimiter,
	})
	if err != nil {
		transport.CloseIdleConnections()
		return nil, fmt.Errorf("create http client: %w", err)
	}

	conn := &Conn{ID: xid.New().String(), CreatedAt: time.Now(), client: client, transport: transport}
	f.logger.Debug("downstream connection handle created", log.String("conn_id", conn.ID))
	return conn, nil
}
