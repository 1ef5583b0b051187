package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title SpaceHub API Gateway
// @version 1.0
// @description Edge gateway in front of the SpaceHub backend services. Requests under `/api/` are
// matched against each service's route globs, rate limited globally and per priority tier,
// authenticated with an HS256 bearer token and forwarded to the upstream. Each service has a
// circuit breaker fed by background health probes and by proxy failures.
//
// Environment variables of interest:
// - `JWT_SECRET`: HMAC secret shared with the auth service.
// - `DATABASE_URL` (optional): Postgres source for service descriptors, schema `GATEWAY_DB_SCHEMA`.
// - `SERVICES_FILE` (optional): YAML descriptor table used when no database is configured.
// - `REDIS_ADDR` (optional): token blacklist / tenant validity store and descriptor cache.
// - `HEALTH_CHECK_SECONDS` (optional): interval between health probe cycles.
//
// @contact.name SpaceHub Platform Team
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @tag.name admin
// @tag.description Registry inspection and manual circuit breaker reset
// @tag.name proxy
// @tag.description Routes forwarded to backend services
// @tag.name system
// @tag.description Health, readiness and metrics

func main() {
	root := &cobra.Command{
		Use:           "api-gateway",
		Short:         "SpaceHub edge API gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), routesCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
