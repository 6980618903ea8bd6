package geoip

import (
	"os"
	"path/filepath"
	"testing"

	"cutl.local/internal/app/shortlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ shortlink.GeoResolver = (*MaxMind)(nil)

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}

func TestOpenNotAnMMDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("definitely not maxmind"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}

// GEOIP_TEST_DB 指向真实的 City 库时才跑
func TestLookup(t *testing.T) {
	path := os.Getenv("GEOIP_TEST_DB")
	if path == "" {
		t.Skip("skip: GEOIP_TEST_DB not set")
	}
	m, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	country, _ := m.Lookup("8.8.8.8")
	require.NotNil(t, country)
	assert.Equal(t, "US", *country)

	country, city := m.Lookup("not-an-ip")
	assert.Nil(t, country)
	assert.Nil(t, city)
}
