package geoip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyPathDisablesLookup(t *testing.T) {
	r, err := NewResolver("  ")
	require.NoError(t, err)
	require.Nil(t, r)
	require.Nil(t, r.Lookup())

	_, err = r.CountryCode("1.2.3.4")
	require.ErrorIs(t, err, ErrUnavailable)
	require.NoError(t, r.Close())
}

func TestMissingDatabaseFails(t *testing.T) {
	_, err := NewResolver(t.TempDir() + "/missing.mmdb")
	require.Error(t, err)
}
