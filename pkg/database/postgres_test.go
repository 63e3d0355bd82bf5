package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "swebuk", Password: "secret", Name: "portal", SSLMode: "require"})
	require.Equal(t, "host=db port=5433 user=swebuk password=secret dbname=portal sslmode=require", dsn)
}
