package auth_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/app"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end tests run the whole application in process against real
 * postgres and redis containers, and drive it through the Go SDK.
 */

const (
	adminEmail    = "admin@x.com"
	adminPassword = "Admin123!"
	adminName     = "Administrator"
)

// startContainer starts image and returns host:port for the given port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func startPostgres(t *testing.T) string {
	t.Helper()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "auth",
			"POSTGRES_PASSWORD": "auth",
			"POSTGRES_DB":       "auth",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	return fmt.Sprintf("postgres://auth:auth@%s/auth?sslmode=disable", addr)
}

func startRedis(t *testing.T) string {
	t.Helper()
	return startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
}

// setupAuthService boots the application with the postgres user store and
// redis refresh store. extra overrides the environment.
func setupAuthService(t *testing.T, extra map[string]string) *authsdk.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	environ := map[string]string{
		"SESSION_SIGNING_SECRET": "e2e-signing-secret",
		"STORE_DRIVER":           "postgres",
		"POSTGRES_DSN":           startPostgres(t),
		"REFRESH_STORE":          "redis",
		"REDIS_ADDR":             startRedis(t),
		"BOOTSTRAP_EMAIL":        adminEmail,
		"BOOTSTRAP_PASSWORD":     adminPassword,
		"BOOTSTRAP_NAME":         adminName,
		"PASSWORD_BCRYPT_COST":   "4",
		"ENV":                    "test",
		"LOG_LEVEL":              "warn",
		// Tests make many rapid requests from one address.
		"RATELIMIT_LOGIN_REQUESTS": "1000",
		"RATELIMIT_LOGIN_BURST":    "1000",
	}
	for k, v := range extra {
		environ[k] = v
	}

	cfg, err := app.LoadConfigFrom(environ)
	require.NoError(t, err)

	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	return authsdk.NewClient(srv.URL)
}

// assertKind checks err is an APIError of the given kind.
func assertKind(t *testing.T, err error, kind string) {
	t.Helper()
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, kind, apiErr.Kind, apiErr.Message)
}
