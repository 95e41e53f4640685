package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type check struct{ err error }

func (c check) CheckReadiness(context.Context) error { return c.err }

func TestReadiness(t *testing.T) {
	require.NoError(t, readiness{check{}, check{}}.CheckReadiness(context.Background()))

	errDB := errors.New("database unreachable")
	errRegistry := errors.New("boundary registry not loaded")
	err := readiness{check{errDB}, check{}, check{errRegistry}}.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errDB)
	assert.ErrorIs(t, err, errRegistry)
}

func TestRoutesFlagNeedsNoDatabaseConfig(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "DB_HOST", "DB_USER", "DB_DATABASE"} {
		t.Setenv(key, "")
	}

	require.NoError(t, run(true, false))
}
