package dnac_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnac-sync/internal/dnac"
	"dnac-sync/internal/dnac/dnactest"
	"dnac-sync/internal/logging"
)

func login(t *testing.T, server *dnactest.Server, username, password string) (*dnac.Client, error) {
	t.Helper()
	return dnac.Login(context.Background(), dnac.Credentials{
		Hostname: server.Hostname(),
		Username: username,
		Password: password,
	}, dnac.Options{Logger: logging.Initialize("debug")})
}

func TestLogin(t *testing.T) {
	server := dnactest.NewServer("admin", "secret")
	defer server.Close()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid credentials", "admin", "secret", nil},
		{"wrong password", "admin", "nope", dnac.ErrUnauthorized},
		{"unknown user", "guest", "secret", dnac.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := login(t, server, tt.username, tt.password)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "unexpected error %v", err)

				var apiErr *dnac.APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, server.Hostname(), client.Hostname())
		})
	}
}

func TestLoginVerifiesCertificates(t *testing.T) {
	server := dnactest.NewServer("admin", "secret")
	defer server.Close()

	// The test server uses a self-signed certificate
	_, err := dnac.Login(context.Background(), dnac.Credentials{
		Hostname: server.Hostname(),
		Username: "admin",
		Password: "secret",
		Verify:   true,
	}, dnac.Options{})

	require.Error(t, err)
	assert.False(t, errors.Is(err, dnac.ErrUnauthorized))
}

func TestLoginUnreachable(t *testing.T) {
	_, err := dnac.Login(context.Background(), dnac.Credentials{
		Hostname: "https://127.0.0.1:1",
		Username: "admin",
		Password: "secret",
	}, dnac.Options{})

	assert.Error(t, err)
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		hostname string
		want     string
		wantErr  bool
	}{
		{hostname: "dnac.example.com", want: "https://dnac.example.com"},
		{hostname: "dnac.example.com/", want: "https://dnac.example.com"},
		{hostname: " 10.0.0.1:8443 ", want: "https://10.0.0.1:8443"},
		{hostname: "http://lab-dnac", want: "http://lab-dnac"},
		{hostname: "https://dnac.example.com", want: "https://dnac.example.com"},
		{hostname: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			got, err := dnac.BaseURL(tt.hostname)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeviceListPaging(t *testing.T) {
	server := dnactest.NewServer("admin", "secret")
	defer server.Close()

	server.SetDevices([]dnac.Device{
		{ID: "1", SerialNumber: "FOC1"},
		{ID: "2", SerialNumber: "FOC2"},
		{ID: "3", SerialNumber: "FOC3"},
	})

	client, err := login(t, server, "admin", "secret")
	require.NoError(t, err)
	defer client.Close()

	first, err := client.DeviceList(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "FOC1", first[0].SerialNumber)

	second, err := client.DeviceList(context.Background(), 3, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "FOC3", second[0].SerialNumber)
}

func TestSitesAndCount(t *testing.T) {
	server := dnactest.NewServer("admin", "secret")
	defer server.Close()

	server.SetSites([]dnac.Site{
		{ID: "s-1", Name: "HQ", SiteNameHierarchy: "Global/HQ", AdditionalInfo: []dnac.AdditionalInfo{
			{NameSpace: "Location", Attributes: map[string]string{"type": "building"}},
		}},
		{ID: "s-2", Name: "Floor 1", SiteNameHierarchy: "Global/HQ/Floor 1", ParentID: "s-1"},
	})

	client, err := login(t, server, "admin", "secret")
	require.NoError(t, err)

	sites, err := client.Sites(context.Background(), 1, 500)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "building", sites[0].Type())
	assert.Equal(t, "", sites[1].Type())

	count, err := client.SiteCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMembership(t *testing.T) {
	server := dnactest.NewServer("admin", "secret")
	defer server.Close()

	server.SetMembership("s-1", "FOC1", "FOC2")
	server.SetRawMembership("s-2", `{"site":{"response":[]}}`)

	client, err := login(t, server, "admin", "secret")
	require.NoError(t, err)

	membership, err := client.Membership(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, membership.Device, 1)
	require.Len(t, membership.Device[0].Response, 2)
	require.NotNil(t, membership.Device[0].Response[0].SerialNumber)
	assert.Equal(t, "FOC1", *membership.Device[0].Response[0].SerialNumber)

	missing, err := client.Membership(context.Background(), "s-2")
	require.NoError(t, err)
	assert.Nil(t, missing.Device, "missing device field must stay nil")

	_, err = client.Membership(context.Background(), "")
	assert.Error(t, err)
}

func TestAPIErrorsAreNotRetried(t *testing.T) {
	server := dnactest.NewServer("admin", "secret")
	defer server.Close()

	client, err := login(t, server, "admin", "secret")
	require.NoError(t, err)

	server.FailPath("/dna/intent/api/v1/site", http.StatusServiceUnavailable)

	_, err = client.Sites(context.Background(), 1, 500)
	require.Error(t, err)

	var apiErr *dnac.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "site", apiErr.Endpoint)
	assert.Equal(t, 1, server.Requests("/dna/intent/api/v1/site"))
}

func TestMalformedResponse(t *testing.T) {
	server := dnactest.NewServer("admin", "secret")
	defer server.Close()

	server.SetRawMembership("s-1", `not json`)

	client, err := login(t, server, "admin", "secret")
	require.NoError(t, err)

	_, err = client.Membership(context.Background(), "s-1")
	assert.Error(t, err)
}
