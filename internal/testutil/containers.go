//go:build integration

// Package testutil starts database containers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	mysqlImage       = "mysql:8.0.36"
	postgresImage    = "postgres:16-alpine"
	database         = "ecsync"
	mysqlUser        = "root"
	postgresUser     = "postgres"
	password         = "secret"
	startupTimeout   = 2 * time.Minute
	mysqlDSNTemplate = "%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true"
	pgDSNTemplate    = "postgres://%s:%s@%s:%s/%s?sslmode=disable"
)

// StartMySQL runs a MySQL container for the test and returns an open handle to it.
// The test is skipped when no container runtime is available.
func StartMySQL(t *testing.T, ctx context.Context) *sql.DB {
	t.Helper()

	port := nat.Port("3306/tcp")
	dsn := start(t, ctx, testcontainers.ContainerRequest{
		Image:        mysqlImage,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": password,
			"MYSQL_DATABASE":      database,
		},
		WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
			return fmt.Sprintf(mysqlDSNTemplate, mysqlUser, password, host, port.Port(), database)
		}).WithStartupTimeout(startupTimeout),
	}, port, func(host, port string) string {
		return fmt.Sprintf(mysqlDSNTemplate, mysqlUser, password, host, port, database)
	})

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// StartPostgres runs a PostgreSQL container for the test and returns a pool connected to it.
// The test is skipped when no container runtime is available.
func StartPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	port := nat.Port("5432/tcp")
	dsn := start(t, ctx, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       database,
		},
		WaitingFor: wait.ForSQL(port, "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf(pgDSNTemplate, postgresUser, password, host, port.Port(), database)
		}).WithStartupTimeout(startupTimeout),
	}, port, func(host, port string) string {
		return fmt.Sprintf(pgDSNTemplate, postgresUser, password, host, port, database)
	})

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func start(
	t *testing.T,
	ctx context.Context,
	req testcontainers.ContainerRequest,
	port nat.Port,
	dsn func(host, port string) string,
) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	return dsn(host, mappedPort.Port())
}
