package idmap

import (
	"errors"
	"testing"

	"farmrent/internal/apperr"
	"farmrent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		onChainID int64
		want      uint64
		wantErr   bool
	}{
		{name: "first listing", onChainID: 1, want: 0},
		{name: "seventh seeded listing", onChainID: 7, want: 6},
		{name: "unassigned", onChainID: 0, wantErr: true},
		{name: "negative", onChainID: -3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.onChainID)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnmapped))
				assert.Equal(t, apperr.ErrConfiguration, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveOnChainIndex(t *testing.T) {
	idx, err := ResolveOnChainIndex(&models.Listing{OnChainID: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), idx)

	_, err = ResolveOnChainIndex(nil)
	assert.ErrorIs(t, err, ErrUnmapped)
}

func TestRoundTrip(t *testing.T) {
	for id := int64(1); id < 50; id++ {
		idx, err := Resolve(id)
		require.NoError(t, err)
		assert.Equal(t, id, ToOnChainID(idx))
	}
}
