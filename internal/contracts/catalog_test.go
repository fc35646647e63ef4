package contracts

import (
	"testing"

	"flowradar/internal/model"
)

func TestCatalog_ReplaceVenueRetainsOthersOnFailure(t *testing.T) {
	c := NewCatalog()
	c.ReplaceVenue(model.VenueBingX, []model.ContractMeta{
		{Symbol: "BTC-USDT", Venue: model.VenueBingX, ListingTS: 1000},
	})
	c.ReplaceVenue(model.VenueBloFin, []model.ContractMeta{
		{Symbol: "ETH-USDT", Venue: model.VenueBloFin, ListingTS: 2000},
	})

	// Simulate bingx's refresh failing: nothing calls ReplaceVenue(bingx, ...)
	// this round, so its entry must remain exactly as it was.
	if _, ok := c.Get(model.VenueBingX, "BTC-USDT"); !ok {
		t.Fatalf("expected bingx entry to survive an untouched refresh round")
	}

	// BloFin's successful refresh replaces only its own keys.
	c.ReplaceVenue(model.VenueBloFin, []model.ContractMeta{
		{Symbol: "SOL-USDT", Venue: model.VenueBloFin, ListingTS: 3000},
	})
	if _, ok := c.Get(model.VenueBloFin, "ETH-USDT"); ok {
		t.Errorf("expected stale blofin entry to be replaced")
	}
	if _, ok := c.Get(model.VenueBloFin, "SOL-USDT"); !ok {
		t.Errorf("expected fresh blofin entry to be present")
	}
	if _, ok := c.Get(model.VenueBingX, "BTC-USDT"); !ok {
		t.Errorf("expected bingx entry to still be present after blofin's refresh")
	}
}

func TestCatalog_GetAllSortsByLeverage(t *testing.T) {
	c := NewCatalog()
	c.ReplaceVenue(model.VenueBingX, []model.ContractMeta{
		{Symbol: "A", Venue: model.VenueBingX, MaxLeverage: 20},
		{Symbol: "B", Venue: model.VenueBingX, MaxLeverage: 100},
	})
	out := c.GetAll(SortByLeverage, "")
	if len(out) != 2 || out[0].Symbol != "B" {
		t.Errorf("expected B (100x) first, got %+v", out)
	}
}

func TestCatalog_GetNewListings(t *testing.T) {
	c := NewCatalog()
	now := int64(1_700_000_000_000)
	c.ReplaceVenue(model.VenueHyperliquid, []model.ContractMeta{
		{Symbol: "OLD", Venue: model.VenueHyperliquid, ListingTS: 1},
		{Symbol: "NEW", Venue: model.VenueHyperliquid, ListingTS: now - 1000},
	})
	out := c.GetNewListings(7, now)
	if len(out) != 1 || out[0].Symbol != "NEW" {
		t.Errorf("expected only NEW within the window, got %+v", out)
	}
}

func TestCatalog_Search(t *testing.T) {
	c := NewCatalog()
	c.ReplaceVenue(model.VenueBingX, []model.ContractMeta{
		{Symbol: "WIF-USDT", Base: "WIF", Venue: model.VenueBingX},
		{Symbol: "BTC-USDT", Base: "BTC", Venue: model.VenueBingX},
	})
	out := c.Search("wif")
	if len(out) != 1 || out[0].Symbol != "WIF-USDT" {
		t.Errorf("expected case-insensitive match on WIF, got %+v", out)
	}
}
