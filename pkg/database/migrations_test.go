package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsCollect(t *testing.T) {
	sources, err := Embedded()
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	assert.Contains(t, sources[0], "00001_fleet.sql")
}
