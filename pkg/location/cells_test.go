package location

import (
	"testing"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellTokenLevel(t *testing.T) {
	tok := CellToken(-17.78, -63.16, 15)
	id := s2.CellIDFromToken(tok)
	require.True(t, id.IsValid())
	assert.Equal(t, 15, id.Level())
}

func TestAggregatorGroupsNearbyPoints(t *testing.T) {
	a := NewCellAggregator(8)
	a.AddToken(CellToken(-17.7800, -63.1600, 15), -17.7800, -63.1600)
	a.AddToken(CellToken(-17.7805, -63.1602, 15), -17.7805, -63.1602)
	a.AddToken("", -16.4897, -68.1193)

	got := a.Clusters()
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Count)
	assert.Equal(t, int64(1), got[1].Count)
	assert.InDelta(t, -16.4897, got[1].Latitude, 1e-9)
	assert.InDelta(t, -68.1193, got[1].Longitude, 1e-9)
}

func TestAggregatorClampsLevel(t *testing.T) {
	assert.Equal(t, MinCellLevel, NewCellAggregator(0).level)
	assert.Equal(t, MaxCellLevel, NewCellAggregator(30).level)
}
