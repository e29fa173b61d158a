package portfolio

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Snapshot{}))
	return db
}

func day(offset int) time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestCatalogPublishAndGetBySeq(t *testing.T) {
	catalog := NewCatalog(newTestDB(t))

	weights := []TargetWeight{
		{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.5)},
		{Ticker: "MSFT", Weight: decimal.NewFromFloat(0.3)},
	}
	require.NoError(t, catalog.Publish("GROWTH", "AGGRESSIVE", 1001, day(0), weights))

	target, err := catalog.GetBySeq(1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), target.PortSeq)
	require.Len(t, target.Weights, 2)
	assert.Equal(t, "AAPL", target.Weights[0].Ticker)
	assert.True(t, target.Weights[0].Weight.Equal(decimal.NewFromFloat(0.5)))

	_, err = catalog.GetBySeq(9999)
	assert.Error(t, err)
}

func TestCatalogPortfolioMapUsesLatestSnapshot(t *testing.T) {
	catalog := NewCatalog(newTestDB(t))

	weights := []TargetWeight{{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.5)}}
	require.NoError(t, catalog.Publish("GROWTH", "AGGRESSIVE", 1001, day(0), weights))
	require.NoError(t, catalog.Publish("GROWTH", "AGGRESSIVE", 1002, day(1), weights))
	require.NoError(t, catalog.Publish("GROWTH", "DEFENSIVE", 2001, day(1), weights))

	// A future publication must not leak into today's map.
	require.NoError(t, catalog.Publish("GROWTH", "AGGRESSIVE", 1003, day(10), weights))

	portMap, err := catalog.GetPortfolioMap(day(2))
	require.NoError(t, err)

	require.Contains(t, portMap, "GROWTH")
	assert.Equal(t, int64(1002), portMap["GROWTH"]["AGGRESSIVE"].PortSeq)
	assert.Equal(t, int64(2001), portMap["GROWTH"]["DEFENSIVE"].PortSeq)
}

func TestCatalogPortfolioMapEmptyWithoutSnapshots(t *testing.T) {
	catalog := NewCatalog(newTestDB(t))

	portMap, err := catalog.GetPortfolioMap(day(0))
	require.NoError(t, err)
	assert.Empty(t, portMap)
}
