//go:build integration

package integration_test

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var knownDrivers = []string{"null", "memory", "redis", "nats", "sqlite", "postgres", "mysql", "dynamodb"}

// selectedIntegrationDrivers reads INTEGRATION_DRIVER, a comma separated list
// of driver names. Empty or "all" selects every driver.
func selectedIntegrationDrivers() map[string]bool {
	selected := make(map[string]bool, len(knownDrivers))
	value := strings.TrimSpace(strings.ToLower(os.Getenv("INTEGRATION_DRIVER")))
	all := value == "" || value == "all"
	for _, name := range knownDrivers {
		selected[name] = all
	}
	if all {
		return selected
	}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			selected[part] = true
		}
	}
	return selected
}

func integrationDriverEnabled(name string) bool {
	return selectedIntegrationDrivers()[strings.ToLower(name)]
}

func retryInit[T any](timeout, interval time.Duration, fn func() (T, error)) (T, error) {
	deadline := time.Now().Add(timeout)
	for {
		v, err := fn()
		if err == nil || time.Now().After(deadline) {
			return v, err
		}
		time.Sleep(interval)
	}
}

func terminate(container testcontainers.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = container.Terminate(ctx)
}

// startContainer runs req and returns the host:port mapped to port.
func startContainer(t *testing.T, ctx context.Context, name string, req testcontainers.ContainerRequest, port nat.Port) (testcontainers.Container, string) {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s container: %v", name, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		terminate(container)
		t.Fatalf("%s container host: %v", name, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		terminate(container)
		t.Fatalf("%s container port: %v", name, err)
	}
	return container, net.JoinHostPort(host, mapped.Port())
}

func startRedisContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	port := nat.Port("6379/tcp")
	return startContainer(t, ctx, "redis", testcontainers.ContainerRequest{
		Image:        "redis:7-bookworm",
		ExposedPorts: []string{string(port)},
		WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(30 * time.Second),
	}, port)
}

func startDynamoContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	port := nat.Port("8000/tcp")
	container, addr := startContainer(t, ctx, "dynamodb-local", testcontainers.ContainerRequest{
		Image:        "amazon/dynamodb-local:latest",
		ExposedPorts: []string{string(port)},
		WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(45 * time.Second),
	}, port)
	return container, "http://" + addr
}

func startNATSContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	port := nat.Port("4222/tcp")
	container, addr := startContainer(t, ctx, "nats", testcontainers.ContainerRequest{
		Image:        "nats:2",
		Cmd:          []string{"-js"},
		ExposedPorts: []string{string(port)},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}, port)
	return container, "nats://" + addr
}

func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	port := nat.Port("5432/tcp")
	return startContainer(t, ctx, "postgres", testcontainers.ContainerRequest{
		Image:        "postgres:16-bookworm",
		Env:          map[string]string{"POSTGRES_PASSWORD": "pass", "POSTGRES_USER": "user", "POSTGRES_DB": "app"},
		ExposedPorts: []string{string(port)},
		WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(60 * time.Second),
	}, port)
}

func startMySQLContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	port := nat.Port("3306/tcp")
	return startContainer(t, ctx, "mysql", testcontainers.ContainerRequest{
		Image: "mysql:8",
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "pass",
			"MYSQL_DATABASE":      "app",
			"MYSQL_USER":          "user",
			"MYSQL_PASSWORD":      "pass",
		},
		ExposedPorts: []string{string(port)},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(port).WithStartupTimeout(90*time.Second),
			wait.ForLog("ready for connections").WithOccurrence(2).WithStartupTimeout(90*time.Second),
		),
	}, port)
}
