package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/db/dbtest"
)

func TestDriver(t *testing.T) {
	dbtest.RunDriverSuite(t, func(t *testing.T) store.Driver {
		driver, err := NewDB(&profile.Profile{DSN: filepath.Join(t.TempDir(), "vectors.db")})
		require.NoError(t, err)
		return driver
	})
}

func TestNewDBRequiresDSN(t *testing.T) {
	_, err := NewDB(&profile.Profile{})
	assert.Error(t, err)
}

func TestVectorBlob(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	blob, err := encodeVector(vec, 3)
	require.NoError(t, err)
	assert.Len(t, blob, 12)

	decoded, err := decodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = encodeVector(vec, 4)
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)

	assert.Equal(t, "?,?,?", placeholders(3))
}
