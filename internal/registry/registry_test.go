package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func svc(name string, routes ...string) *Service {
	s := &Service{Name: name, BaseURL: "http://" + name + ":3000", Routes: routes}
	s.ApplyDefaults()
	return s
}

func TestRegistry_MatchGlob(t *testing.T) {
	reg := New()
	reg.Set([]*Service{
		svc("bookings", "/api/bookings/*"),
		svc("auth", "/api/auth/*"),
		svc("status", "/api/status"),
		svc("reports", "/api/tenants/*/reports/*"),
	})

	cases := []struct {
		path string
		want string
	}{
		{"/api/bookings/123", "bookings"},
		{"/api/bookings/", "bookings"},
		{"/api/auth/login", "auth"},
		{"/api/status", "status"},
		{"/api/tenants/t1/reports/monthly", "reports"},
		{"/api/bookings", ""},
		{"/api/status/extra", ""},
		{"/v2/api/bookings/1", ""},
		{"/api/unknown/x", ""},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			s, ok := reg.Match(tc.path)
			if tc.want == "" {
				assert.False(t, ok)
				assert.Nil(t, s)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, s.Name)
		})
	}
}

func TestRegistry_FirstRegisteredWins(t *testing.T) {
	reg := New()
	reg.Set([]*Service{
		svc("spaces", "/api/spaces/*"),
		svc("space-analytics", "/api/spaces/analytics/*"),
	})

	s, ok := reg.Match("/api/spaces/analytics/daily")
	require.True(t, ok)
	assert.Equal(t, "spaces", s.Name)
}

func TestRegistry_DuplicateNamesIgnored(t *testing.T) {
	reg := New()
	reg.Set([]*Service{svc("a", "/api/a/*"), svc("a", "/api/other/*")})

	assert.Equal(t, []string{"a"}, reg.Names())
	_, ok := reg.Match("/api/other/x")
	assert.False(t, ok)
}

func TestRegistry_Routes(t *testing.T) {
	reg := New()
	reg.Set([]*Service{svc("a", "/api/a/*", "/api/aa/*"), svc("b", "/api/b/*")})

	routes := reg.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "/api/a/*", routes[0].Pattern)
	assert.Equal(t, "b", routes[2].Service)
	assert.Equal(t, PriorityMedium, routes[2].Priority)
}

func TestService_Validate(t *testing.T) {
	good := svc("ok", "/api/ok/*")
	require.NoError(t, good.Validate())

	bad := []*Service{
		{BaseURL: "http://x", Routes: []string{"/x"}},
		{Name: "x", Routes: []string{"/x"}},
		{Name: "x", BaseURL: "http://x"},
		{Name: "x", BaseURL: "http://x", Routes: []string{""}},
	}
	for _, s := range bad {
		s.ApplyDefaults()
		assert.Error(t, s.Validate())
	}

	unknown := svc("x", "/api/x/*")
	unknown.Priority = "urgent"
	assert.Error(t, unknown.Validate())

	grpcNoTarget := svc("x", "/api/x/*")
	grpcNoTarget.HealthProtocol = ProtocolGRPC
	assert.Error(t, grpcNoTarget.Validate())
}

type flakyRepo struct {
	*MemoryRepository
	failures int32
	calls    atomic.Int32
}

func (f *flakyRepo) LoadAll(ctx context.Context) ([]*Service, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.MemoryRepository.LoadAll(ctx)
}

func TestLoad_RetriesTransientFailures(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: NewMemoryRepository(svc("a", "/api/a/*")), failures: 2}
	reg := New()

	err := Load(context.Background(), repo, reg, LoadOptions{MaxRetries: 3, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, int32(3), repo.calls.Load())
	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestLoad_GivesUp(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: NewMemoryRepository(svc("a", "/api/a/*")), failures: 10}

	err := Load(context.Background(), repo, New(), LoadOptions{MaxRetries: 1, BaseDelay: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestLoad_InvalidDescriptorNotRetried(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: NewMemoryRepository(&Service{Name: "broken", Routes: []string{"/api/b/*"}})}

	err := Load(context.Background(), repo, New(), LoadOptions{MaxRetries: 5, BaseDelay: time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base url")
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestLoad_EmptyRepository(t *testing.T) {
	err := Load(context.Background(), NewMemoryRepository(), New(), LoadOptions{BaseDelay: time.Millisecond})
	assert.Error(t, err)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(svc("b", "/api/b/*"), svc("a", "/api/a/*"))

	list, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Name)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	updated := svc("b", "/api/bee/*")
	require.NoError(t, repo.Save(ctx, updated))
	got, err := repo.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/bee/*"}, got.Routes)

	list, _ = repo.LoadAll(ctx)
	assert.Equal(t, "b", list[0].Name)
}
