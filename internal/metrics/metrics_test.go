package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDNACRequest(t *testing.T) {
	tests := []struct {
		name       string
		endpoint   string
		statusCode int
		wantLabel  string
	}{
		{"successful call", "network-device", 200, "200"},
		{"unauthorized", "auth-token", 401, "401"},
		{"transport failure", "site", 0, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(DNACRequestsTotal.WithLabelValues(tt.endpoint, tt.wantLabel))

			RecordDNACRequest(tt.endpoint, tt.statusCode, 25*time.Millisecond)

			after := testutil.ToFloat64(DNACRequestsTotal.WithLabelValues(tt.endpoint, tt.wantLabel))
			if after != before+1 {
				t.Errorf("expected counter to increase by 1, got %v -> %v", before, after)
			}
		})
	}
}

func TestSetTenantAuthStatus(t *testing.T) {
	SetTenantAuthStatus("dnac.example.com", true)
	if got := testutil.ToFloat64(TenantAuthStatus.WithLabelValues("dnac.example.com")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}

	SetTenantAuthStatus("dnac.example.com", false)
	if got := testutil.ToFloat64(TenantAuthStatus.WithLabelValues("dnac.example.com")); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits.WithLabelValues("sites"))
	misses := testutil.ToFloat64(CacheMisses.WithLabelValues("sites"))

	RecordCacheLookup("sites", true)
	RecordCacheLookup("sites", false)
	RecordCacheLookup("sites", false)

	if got := testutil.ToFloat64(CacheHits.WithLabelValues("sites")); got != hits+1 {
		t.Errorf("expected %v hits, got %v", hits+1, got)
	}
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("sites")); got != misses+2 {
		t.Errorf("expected %v misses, got %v", misses+2, got)
	}
}

func TestRecordSync(t *testing.T) {
	success := testutil.ToFloat64(SyncRunsTotal.WithLabelValues("sync.example.com", "success"))
	failed := testutil.ToFloat64(SyncRunsTotal.WithLabelValues("sync.example.com", "failed"))

	RecordSync("sync.example.com", time.Second, nil)
	RecordSync("sync.example.com", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(SyncRunsTotal.WithLabelValues("sync.example.com", "success")); got != success+1 {
		t.Errorf("expected success counter %v, got %v", success+1, got)
	}
	if got := testutil.ToFloat64(SyncRunsTotal.WithLabelValues("sync.example.com", "failed")); got != failed+1 {
		t.Errorf("expected failed counter %v, got %v", failed+1, got)
	}
}

func TestUpdateInventory(t *testing.T) {
	UpdateInventory("inv.example.com", 3, 12, 10)

	if got := testutil.ToFloat64(InventorySites.WithLabelValues("inv.example.com")); got != 3 {
		t.Errorf("expected 3 sites, got %v", got)
	}
	if got := testutil.ToFloat64(InventoryDevices.WithLabelValues("inv.example.com")); got != 12 {
		t.Errorf("expected 12 devices, got %v", got)
	}
	if got := testutil.ToFloat64(InventoryMapped.WithLabelValues("inv.example.com")); got != 10 {
		t.Errorf("expected 10 mapped, got %v", got)
	}
}
