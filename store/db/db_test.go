package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store/db/badgerdb"
)

func TestNewDBDriver(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		profile *profile.Profile
	}{
		{"memory", &profile.Profile{Driver: "memory"}},
		{"sqlite", &profile.Profile{Driver: "sqlite", DSN: filepath.Join(dir, "v.db")}},
		{"badger", &profile.Profile{Driver: "badger", DSN: badgerdb.InMemoryDSN}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, err := NewDBDriver(tt.profile)
			require.NoError(t, err)
			assert.NoError(t, driver.Close())
		})
	}

	_, err := NewDBDriver(&profile.Profile{Driver: "pinecone"})
	assert.Error(t, err)

	_, err = NewDBDriver(&profile.Profile{Driver: "postgres"})
	assert.Error(t, err)
}
