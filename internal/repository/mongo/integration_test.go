//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	repo "github.com/dtroode/account-server/internal/repository/mongo"
	"github.com/dtroode/account-server/internal/repository/storetest"
)

var uri string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		panic(err)
	}
	uri = fmt.Sprintf("mongodb://%s:%s", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestAccountRepository_Contract(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, uri, "account_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	storetest.Run(t, repo.NewAccountRepository(conn))
}

func TestEnsureIndexes_Idempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, uri, "account_test_indexes")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	require.NoError(t, repo.EnsureIndexes(ctx, conn.Database))
}
