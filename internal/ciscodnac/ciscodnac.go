// Package ciscodnac authenticates against every configured DNA Center tenant
// and exposes the inventory reads used by the sync.
package ciscodnac

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dnac-sync/internal/cache"
	"dnac-sync/internal/database"
	"dnac-sync/internal/dnac"
	"dnac-sync/internal/logging"
	"dnac-sync/internal/metrics"
)

// Tenant status values besides an error message
const (
	StatusDisabled = "disabled"
	StatusSuccess  = "success"
)

// Defaults applied to zero Options fields
const (
	DefaultPageSize = 500
	DefaultWorkers  = 10
	DefaultCacheTTL = 5 * time.Minute
)

// ErrNoSession is returned when a tenant has no authenticated session
var ErrNoSession = errors.New("no authenticated session for tenant")

// TenantStore is the read side of the tenant settings table
type TenantStore interface {
	ListTenants(ctx context.Context) ([]*database.Tenant, error)
	GetTenant(ctx context.Context, id int64) (*database.Tenant, error)
}

// Session is an authenticated connection to one controller
type Session interface {
	Hostname() string
	DeviceList(ctx context.Context, offset, limit int) ([]dnac.Device, error)
	Sites(ctx context.Context, offset, limit int) ([]dnac.Site, error)
	SiteCount(ctx context.Context) (int, error)
	Membership(ctx context.Context, siteID string) (*dnac.Membership, error)
}

// Dialer authenticates against a controller and returns a session
type Dialer func(ctx context.Context, creds dnac.Credentials) (Session, error)

// Options configures a CiscoDNAC
type Options struct {
	Cache          cache.Cache
	CacheTTL       time.Duration
	PageSize       int
	Workers        int
	Parallel       bool
	RequestTimeout time.Duration
	Logger         *logrus.Logger
	Dialer         Dialer
}

func (o *Options) applyDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Dialer == nil {
		timeout, logger := o.RequestTimeout, o.Logger
		o.Dialer = func(ctx context.Context, creds dnac.Credentials) (Session, error) {
			client, err := dnac.Login(ctx, creds, dnac.Options{Timeout: timeout, Logger: logger})
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
}

// CiscoDNAC holds one session per successfully authenticated tenant and the
// authentication status of every tenant it was built for.
type CiscoDNAC struct {
	opts     Options
	logger   *logrus.Logger
	sessions map[string]Session
	status   map[string]string
}

func newCiscoDNAC(opts Options) *CiscoDNAC {
	opts.applyDefaults()
	return &CiscoDNAC{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]Session),
		status:   make(map[string]string),
	}
}

// New authenticates against every enabled tenant. Disabled tenants keep the
// "disabled" status. A failed authentication is recorded in the status map and
// does not stop the remaining tenants; the only error returned is a failure to
// read the tenant table.
func New(ctx context.Context, store TenantStore, opts Options) (*CiscoDNAC, error) {
	c := newCiscoDNAC(opts)

	tenants, err := store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}

	for _, tenant := range tenants {
		c.status[tenant.Hostname] = StatusDisabled
		if tenant.Enabled {
			c.auth(ctx, tenant)
		}
	}

	return c, nil
}

// NewForTenant authenticates against a single tenant regardless of its enabled
// flag. An unknown id returns database.ErrTenantNotFound.
func NewForTenant(ctx context.Context, store TenantStore, id int64, opts Options) (*CiscoDNAC, error) {
	tenant, err := store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	c := newCiscoDNAC(opts)
	c.auth(ctx, tenant)
	return c, nil
}

func (c *CiscoDNAC) auth(ctx context.Context, tenant *database.Tenant) {
	logger := logging.NewTenantLogger(c.logger, tenant.Hostname)

	session, err := c.opts.Dialer(ctx, dnac.Credentials{
		Hostname: tenant.Hostname,
		Username: tenant.Username,
		Password: tenant.Password,
		Verify:   tenant.Verify,
	})
	if err != nil {
		logging.LogAuthError(logger, err, tenant.Hostname)
		c.status[tenant.Hostname] = err.Error()
		metrics.SetTenantAuthStatus(tenant.Hostname, false)
		return
	}

	c.sessions[tenant.Hostname] = session
	c.status[tenant.Hostname] = StatusSuccess
	metrics.SetTenantAuthStatus(tenant.Hostname, true)
	logger.Info("Authenticated against DNA Center")
}

// Status returns a copy of the authentication status keyed by hostname
func (c *CiscoDNAC) Status() map[string]string {
	status := make(map[string]string, len(c.status))
	for host, s := range c.status {
		status[host] = s
	}
	return status
}

// Sessions returns a copy of the authenticated sessions keyed by hostname
func (c *CiscoDNAC) Sessions() map[string]Session {
	sessions := make(map[string]Session, len(c.sessions))
	for host, s := range c.sessions {
		sessions[host] = s
	}
	return sessions
}

// Session returns the session of one tenant
func (c *CiscoDNAC) Session(hostname string) (Session, bool) {
	s, ok := c.sessions[hostname]
	return s, ok
}

// Hostnames returns every known tenant hostname in sorted order
func (c *CiscoDNAC) Hostnames() []string {
	hosts := make([]string, 0, len(c.status))
	for host := range c.status {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// Close releases every session
func (c *CiscoDNAC) Close() error {
	for _, s := range c.sessions {
		if closer, ok := s.(io.Closer); ok {
			closer.Close()
		}
	}
	return nil
}

func (c *CiscoDNAC) session(hostname string) (Session, error) {
	s, ok := c.sessions[hostname]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, hostname)
	}
	return s, nil
}

// Devices returns every device of a tenant
func (c *CiscoDNAC) Devices(ctx context.Context, hostname string) ([]dnac.Device, error) {
	s, err := c.session(hostname)
	if err != nil {
		return nil, err
	}
	devices, err := Paginate[dnac.Device](ctx, c.opts.PageSize, s.DeviceList)
	if err != nil {
		logging.LogAPIError(c.logger, err, hostname, "list_devices")
		return nil, err
	}
	return devices, nil
}

// Sites returns every site of a tenant
func (c *CiscoDNAC) Sites(ctx context.Context, hostname string) ([]dnac.Site, error) {
	s, err := c.session(hostname)
	if err != nil {
		return nil, err
	}
	sites, err := Paginate[dnac.Site](ctx, c.opts.PageSize, s.Sites)
	if err != nil {
		logging.LogAPIError(c.logger, err, hostname, "list_sites")
		return nil, err
	}
	return sites, nil
}

// SitesCount returns the number of sites reported by a tenant
func (c *CiscoDNAC) SitesCount(ctx context.Context, hostname string) (int, error) {
	s, err := c.session(hostname)
	if err != nil {
		return 0, err
	}
	return s.SiteCount(ctx)
}
