package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Controller API metrics
	DNACRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnac_requests_total",
			Help: "Total number of requests sent to DNA Center",
		},
		[]string{"endpoint", "status_code"},
	)

	DNACRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dnac_request_duration_seconds",
			Help:    "DNA Center request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// 1 when the last authentication of a tenant succeeded, 0 otherwise
	TenantAuthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dnac_tenant_auth_status",
			Help: "Authentication status per tenant (1 = success)",
		},
		[]string{"tenant"},
	)

	MembershipErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnac_membership_errors_total",
			Help: "Total number of sites skipped because of a failed or malformed membership lookup",
		},
		[]string{"tenant"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Sync metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of a tenant inventory sync in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"tenant"},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of tenant sync runs by result",
		},
		[]string{"tenant", "result"},
	)

	InventoryDevices = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_devices",
			Help: "Number of devices stored for a tenant after the last sync",
		},
		[]string{"tenant"},
	)

	InventorySites = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_sites",
			Help: "Number of sites stored for a tenant after the last sync",
		},
		[]string{"tenant"},
	)

	InventoryMapped = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_mapped_devices",
			Help: "Number of devices with a site assignment after the last sync",
		},
		[]string{"tenant"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)
)

// RecordDNACRequest records one controller call. A status code of zero means
// the request never got a response.
func RecordDNACRequest(endpoint string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	DNACRequestsTotal.WithLabelValues(endpoint, status).Inc()
	DNACRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetTenantAuthStatus records the outcome of a tenant authentication
func SetTenantAuthStatus(tenant string, ok bool) {
	value := 0.0
	if ok {
		value = 1
	}
	TenantAuthStatus.WithLabelValues(tenant).Set(value)
}

// RecordMembershipError counts a skipped site
func RecordMembershipError(tenant string) {
	MembershipErrors.WithLabelValues(tenant).Inc()
}

// RecordCacheLookup counts a hit or a miss for the named cache
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}

// RecordSync records a finished tenant sync
func RecordSync(tenant string, duration time.Duration, err error) {
	SyncDuration.WithLabelValues(tenant).Observe(duration.Seconds())

	result := "success"
	if err != nil {
		result = "failed"
	}
	SyncRunsTotal.WithLabelValues(tenant, result).Inc()
}

// UpdateInventory sets the inventory gauges of a tenant
func UpdateInventory(tenant string, sites, devices, mapped int) {
	InventorySites.WithLabelValues(tenant).Set(float64(sites))
	InventoryDevices.WithLabelValues(tenant).Set(float64(devices))
	InventoryMapped.WithLabelValues(tenant).Set(float64(mapped))
}

// RecordAPIRequest records HTTP API request metrics
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRateLimitHit counts a rejected API request
func RecordRateLimitHit(endpoint string) {
	APIRateLimitHits.WithLabelValues(endpoint).Inc()
}
