package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUIDArrayValueScan(t *testing.T) {
	a := uuid.MustParse("5f2f8f4e-6f55-4b8a-9d1c-0c7e5d7f0a01")
	b := uuid.MustParse("5f2f8f4e-6f55-4b8a-9d1c-0c7e5d7f0a02")

	val, err := UUIDArray{a, b}.Value()
	require.NoError(t, err)
	require.Equal(t, "{"+a.String()+","+b.String()+"}", val)

	var decoded UUIDArray
	require.NoError(t, decoded.Scan([]byte(val.(string))))
	require.Equal(t, UUIDArray{a, b}, decoded)
	require.True(t, decoded.Contains(b))
	require.False(t, decoded.Contains(uuid.New()))
}

func TestUUIDArrayScanEmpty(t *testing.T) {
	var decoded UUIDArray
	require.NoError(t, decoded.Scan(nil))
	require.Empty(t, decoded)
	require.NoError(t, decoded.Scan("{}"))
	require.Empty(t, decoded)
	require.Error(t, decoded.Scan(42))
}

func TestUUIDArrayDedupe(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	require.Equal(t, UUIDArray{a, b}, UUIDArray{a, b, a}.Dedupe())
}
