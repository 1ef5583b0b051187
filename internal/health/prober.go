package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"spacehub/api-gateway/internal/registry"
)

// Prober checks one service. A nil error means healthy; the returned string is
// the upstream version when it reports one.
type Prober interface {
	Probe(ctx context.Context, svc *registry.Service) (string, error)
}

// HTTPProber issues GET <baseURL><healthCheckPath> and expects 200.
type HTTPProber struct {
	Client *http.Client
}

func (p *HTTPProber) Probe(ctx context.Context, svc *registry.Service) (string, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(svc.BaseURL, "/") + svc.HealthCheckPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "api-gateway-health-check")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	var body struct {
		Version string `json:"version"`
	}
	// body is optional; a non-JSON 200 is still healthy
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return body.Version, nil
}

// GRPCProber uses the standard grpc.health.v1 protocol against svc.GRPCTarget.
type GRPCProber struct{}

func (GRPCProber) Probe(ctx context.Context, svc *registry.Service) (string, error) {
	conn, err := grpc.NewClient(svc.GRPCTarget, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return "", err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return "", fmt.Errorf("grpc health status %s", resp.GetStatus())
	}
	return "", nil
}
