package testtool

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupContainer 通用函式來啟動測試容器
func SetupContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", "", err
	}

	// 轉換 ExposedPorts[0] 為 nat.Port
	natPort, err := nat.NewPort("tcp", strings.TrimSuffix(req.ExposedPorts[0], "/tcp"))
	if err != nil {
		return nil, "", "", err
	}

	port, err := container.MappedPort(ctx, natPort)
	if err != nil {
		return nil, "", "", err
	}

	return container, host, port.Port(), nil
}

// StartMongo mongo container, returns the connection uri
func StartMongo(ctx context.Context) (testcontainers.Container, string, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("mongodb://%s:%s", host, port), nil
}

// StartPostgres postgres container, returns the dsn
func StartPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image: "postgres:16",
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port), nil
}

// StartRedis redis container, returns host:port
func StartRedis(ctx context.Context) (testcontainers.Container, string, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("%s:%s", host, port), nil
}
