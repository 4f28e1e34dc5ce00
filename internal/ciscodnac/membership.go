package ciscodnac

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dnac-sync/internal/dnac"
	"dnac-sync/internal/logging"
	"dnac-sync/internal/metrics"
)

var (
	errMembershipNil      = errors.New("membership is empty")
	errMembershipNoDevice = errors.New("membership is missing the device attribute")
)

// SitesCacheKey is the cache key of a tenant's site list
func SitesCacheKey(hostname string) string {
	return "dnac_sites_cache:" + hostname
}

// MembershipCacheKey is the cache key of one site's membership
func MembershipCacheKey(hostname, siteID string) string {
	return fmt.Sprintf("dnac_membership:%s:%s", hostname, siteID)
}

// DevicesToSites maps every device serial number of a tenant to the id of the
// site it belongs to. Sites whose membership cannot be read or is malformed are
// logged and contribute nothing. When a serial shows up under several sites the
// site that comes later in the site list wins.
func (c *CiscoDNAC) DevicesToSites(ctx context.Context, hostname string) (map[string]string, error) {
	s, err := c.session(hostname)
	if err != nil {
		return nil, err
	}

	logger := logging.NewTenantLogger(c.logger, hostname)

	sites, err := c.cachedSites(ctx, s, logger)
	if err != nil {
		return nil, err
	}

	return c.mapSites(ctx, s, sites, logger)
}

// DevicesToSitesIn is DevicesToSites over a site list the caller already
// fetched. The list replaces the cached one.
func (c *CiscoDNAC) DevicesToSitesIn(ctx context.Context, hostname string, sites []dnac.Site) (map[string]string, error) {
	s, err := c.session(hostname)
	if err != nil {
		return nil, err
	}

	logger := logging.NewTenantLogger(c.logger, hostname)
	c.cacheSet(ctx, SitesCacheKey(hostname), sites, logger)

	return c.mapSites(ctx, s, sites, logger)
}

func (c *CiscoDNAC) mapSites(ctx context.Context, s Session, sites []dnac.Site, logger *logrus.Entry) (map[string]string, error) {
	mapping := make(map[string]string)
	if len(sites) == 0 {
		logger.Warn("No sites returned by DNA Center, device mapping is empty")
		return mapping, nil
	}

	// One slot per site so the merge below does not depend on worker timing
	perSite := make([]map[string]string, len(sites))

	if c.opts.Parallel && c.opts.Workers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.Workers)

		for i := range sites {
			i := i
			g.Go(func() error {
				perSite[i] = c.processSite(gctx, s, sites[i], logger)
				return nil
			})
		}
		g.Wait()
	} else {
		for i := range sites {
			if ctx.Err() != nil {
				break
			}
			perSite[i] = c.processSite(ctx, s, sites[i], logger)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, devices := range perSite {
		for serial, siteID := range devices {
			mapping[serial] = siteID
		}
	}

	logger.WithFields(logrus.Fields{
		"sites":   len(sites),
		"devices": len(mapping),
	}).Debug("Built device to site mapping")

	return mapping, nil
}

func (c *CiscoDNAC) cachedSites(ctx context.Context, s Session, logger *logrus.Entry) ([]dnac.Site, error) {
	key := SitesCacheKey(s.Hostname())

	var sites []dnac.Site
	if c.cacheGet(ctx, key, &sites, "sites", logger) {
		return sites, nil
	}

	sites, err := Paginate[dnac.Site](ctx, c.opts.PageSize, s.Sites)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	c.cacheSet(ctx, key, sites, logger)
	return sites, nil
}

// processSite never fails; problems are logged and yield an empty result
func (c *CiscoDNAC) processSite(ctx context.Context, s Session, site dnac.Site, logger *logrus.Entry) map[string]string {
	hostname := s.Hostname()
	key := MembershipCacheKey(hostname, site.ID)
	siteLogger := logger.WithField("site_id", site.ID)

	var membership *dnac.Membership
	if !c.cacheGet(ctx, key, &membership, "membership", siteLogger) {
		fetched, err := s.Membership(ctx, site.ID)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return map[string]string{}
		}
		if err != nil {
			logging.LogPayloadError(siteLogger, fmt.Errorf("failed to fetch membership: %w", err), hostname, site.ID)
			metrics.RecordMembershipError(hostname)
			return map[string]string{}
		}
		if fetched == nil {
			logging.LogPayloadError(siteLogger, errMembershipNil, hostname, site.ID)
			metrics.RecordMembershipError(hostname)
			return map[string]string{}
		}

		membership = fetched
		c.cacheSet(ctx, key, membership, siteLogger)
	}

	return siteDevices(membership, site.ID, hostname, siteLogger)
}

func siteDevices(membership *dnac.Membership, siteID, hostname string, logger *logrus.Entry) map[string]string {
	devices := make(map[string]string)

	if membership == nil {
		logging.LogPayloadError(logger, errMembershipNil, hostname, siteID)
		metrics.RecordMembershipError(hostname)
		return devices
	}
	if membership.Device == nil {
		logging.LogPayloadError(logger, errMembershipNoDevice, hostname, siteID)
		metrics.RecordMembershipError(hostname)
		return devices
	}
	if len(membership.Device) == 0 {
		logger.Debug("Site has no member devices")
		return devices
	}

	for _, group := range membership.Device {
		if len(group.Response) == 0 {
			logger.Warn("No response found for membership devices")
			continue
		}
		for _, device := range group.Response {
			if device.SerialNumber == nil || *device.SerialNumber == "" {
				logger.WithField("device_id", device.ID).Warn("Member device has no serial number")
				continue
			}
			devices[*device.SerialNumber] = siteID
		}
	}

	return devices
}

// cacheGet treats a missing cache or a cache failure as a miss
func (c *CiscoDNAC) cacheGet(ctx context.Context, key string, dest interface{}, name string, logger *logrus.Entry) bool {
	if c.opts.Cache == nil {
		return false
	}

	found, err := c.opts.Cache.Get(ctx, key, dest)
	if err != nil {
		logging.LogCacheError(logger, err, "get", key)
		found = false
	}
	metrics.RecordCacheLookup(name, found)
	return found
}

func (c *CiscoDNAC) cacheSet(ctx context.Context, key string, value interface{}, logger *logrus.Entry) {
	if c.opts.Cache == nil {
		return
	}

	if err := c.opts.Cache.Set(ctx, key, value, c.opts.CacheTTL); err != nil {
		logging.LogCacheError(logger, err, "set", key)
	}
}
