package ciscodnac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"dnac-sync/internal/database"
	"dnac-sync/internal/dnac"
)

// MockTenantStore is a testify mock of TenantStore
type MockTenantStore struct {
	mock.Mock
}

func (m *MockTenantStore) ListTenants(ctx context.Context) ([]*database.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*database.Tenant), args.Error(1)
}

func (m *MockTenantStore) GetTenant(ctx context.Context, id int64) (*database.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Tenant), args.Error(1)
}

// fakeSession serves canned controller data and counts calls
type fakeSession struct {
	hostname    string
	devices     []dnac.Device
	sites       []dnac.Site
	sitesErr    error
	memberships map[string]*dnac.Membership
	memberErrs  map[string]error
	delay       time.Duration
	onMember    func(siteID string)

	mu            sync.Mutex
	siteCalls     int
	memberCalls   map[string]int
	inFlight      int32
	maxInFlight   int32
	deviceOffsets []int
}

func newFakeSession(hostname string) *fakeSession {
	return &fakeSession{
		hostname:    hostname,
		memberships: make(map[string]*dnac.Membership),
		memberErrs:  make(map[string]error),
		memberCalls: make(map[string]int),
	}
}

func (f *fakeSession) Hostname() string { return f.hostname }

func (f *fakeSession) DeviceList(ctx context.Context, offset, limit int) ([]dnac.Device, error) {
	f.mu.Lock()
	f.deviceOffsets = append(f.deviceOffsets, offset)
	f.mu.Unlock()
	return page(f.devices, offset, limit), nil
}

func (f *fakeSession) Sites(ctx context.Context, offset, limit int) ([]dnac.Site, error) {
	f.mu.Lock()
	f.siteCalls++
	f.mu.Unlock()
	if f.sitesErr != nil {
		return nil, f.sitesErr
	}
	return page(f.sites, offset, limit), nil
}

func (f *fakeSession) SiteCount(ctx context.Context) (int, error) {
	return len(f.sites), nil
}

func (f *fakeSession) Membership(ctx context.Context, siteID string) (*dnac.Membership, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, current) {
			break
		}
	}

	f.mu.Lock()
	f.memberCalls[siteID]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.onMember != nil {
		f.onMember(siteID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := f.memberErrs[siteID]; err != nil {
		return nil, err
	}
	return f.memberships[siteID], nil
}

func (f *fakeSession) membershipCalls(siteID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberCalls[siteID]
}

func (f *fakeSession) setMembers(siteID string, serials ...string) {
	devices := make([]dnac.MemberDevice, 0, len(serials))
	for _, serial := range serials {
		serial := serial
		devices = append(devices, dnac.MemberDevice{SerialNumber: &serial})
	}
	f.memberships[siteID] = &dnac.Membership{
		Device: []dnac.MembershipGroup{{Response: devices}},
	}
}

func page[T any](items []T, offset, limit int) []T {
	start := offset - 1
	if start > len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// fakeDialer hands out sessions by hostname and fails for unknown hosts
func fakeDialer(sessions map[string]*fakeSession) Dialer {
	return func(ctx context.Context, creds dnac.Credentials) (Session, error) {
		s, ok := sessions[creds.Hostname]
		if !ok {
			return nil, fmt.Errorf("dnac auth-token: %w", dnac.ErrUnauthorized)
		}
		return s, nil
	}
}

var errBoom = errors.New("boom")
