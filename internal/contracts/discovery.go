package contracts

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"flowradar/internal/model"
)

const (
	fetchTimeout    = 10 * time.Second
	refreshInterval = 300 * time.Second
)

var defaultEndpoints = map[model.Venue]string{
	model.VenueBingX:       "https://open-api.bingx.com/openApi/swap/v2/quote/contracts",
	model.VenueBloFin:      "https://openapi.blofin.com/api/v1/market/instruments?instType=SWAP",
	model.VenueHyperliquid: "https://api.hyperliquid.xyz/info",
}

// Discovery periodically refreshes a Catalog from each venue's REST catalog
// endpoint, fetched in parallel. A venue whose fetch fails leaves the
// catalog's existing entries for that venue untouched.
type Discovery struct {
	client    *resty.Client
	endpoints map[model.Venue]string
	catalog   *Catalog
	trigger   chan struct{}
}

func NewDiscovery(catalog *Catalog) *Discovery {
	return &Discovery{
		client:    resty.New().SetTimeout(fetchTimeout).SetRetryCount(1),
		endpoints: defaultEndpoints,
		catalog:   catalog,
		trigger:   make(chan struct{}, 1),
	}
}

// TriggerRefresh requests an out-of-band refresh on top of the periodic
// schedule, coalescing with any already-pending request.
func (d *Discovery) TriggerRefresh() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// RefreshOnce runs a single synchronous fetch across all venues. Callers
// that need the catalog populated before proceeding (auto-watch at startup)
// should call this before handing Discovery off to Run.
func (d *Discovery) RefreshOnce(ctx context.Context) {
	d.refreshAll(ctx)
}

// Run refreshes every 300s (or on demand via TriggerRefresh) until ctx is
// cancelled. It does not perform an initial fetch; call RefreshOnce first if
// the catalog needs to be populated before Run starts.
func (d *Discovery) Run(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refreshAll(ctx)
		case <-d.trigger:
			d.refreshAll(ctx)
		}
	}
}

func (d *Discovery) refreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	fetchers := map[model.Venue]func(context.Context) ([]model.ContractMeta, error){
		model.VenueBingX:       d.fetchBingX,
		model.VenueBloFin:      d.fetchBloFin,
		model.VenueHyperliquid: d.fetchHyperliquid,
	}

	for venue, fetch := range fetchers {
		wg.Add(1)
		go func(venue model.Venue, fetch func(context.Context) ([]model.ContractMeta, error)) {
			defer wg.Done()
			contracts, err := fetch(ctx)
			if err != nil {
				log.Printf("[contracts] %s refresh failed, keeping previous entries: %v", venue, err)
				return
			}
			d.catalog.ReplaceVenue(venue, contracts)
			log.Printf("[contracts] %s refreshed: %d contracts", venue, len(contracts))
		}(venue, fetch)
	}
	wg.Wait()
}

type bingxContractsResp struct {
	Data []struct {
		Symbol           string `json:"symbol"`
		Asset            string `json:"asset"`
		Currency         string `json:"currency"`
		LaunchTime       string `json:"launchTime"`
		TradeMinQuantity string `json:"tradeMinQuantity"`
		APIStateOpen     string `json:"apiStateOpen"`
	} `json:"data"`
}

func (d *Discovery) fetchBingX(ctx context.Context) ([]model.ContractMeta, error) {
	var body bingxContractsResp
	_, err := d.client.R().SetContext(ctx).SetResult(&body).Get(d.endpoints[model.VenueBingX])
	if err != nil {
		return nil, err
	}

	out := make([]model.ContractMeta, 0, len(body.Data))
	for _, c := range body.Data {
		if c.APIStateOpen != "true" {
			continue
		}
		base := c.Asset
		if base == "" {
			base = strings.SplitN(c.Symbol, "-", 2)[0]
		}
		quote := c.Currency
		if quote == "" {
			quote = "USDT"
		}
		out = append(out, model.ContractMeta{
			Symbol:      c.Symbol,
			Base:        base,
			Quote:       quote,
			Venue:       model.VenueBingX,
			ListingTS:   parseInt64(c.LaunchTime),
			MaxLeverage: 100,
			MinSize:     parseFloat(c.TradeMinQuantity),
			Enabled:     true,
		})
	}
	return out, nil
}

type blofinContractsResp struct {
	Data []struct {
		InstID        string `json:"instId"`
		BaseCurrency  string `json:"baseCurrency"`
		QuoteCurrency string `json:"quoteCurrency"`
		ListTime      string `json:"listTime"`
		MaxLeverage   string `json:"maxLeverage"`
		MinSize       string `json:"minSize"`
		State         string `json:"state"`
	} `json:"data"`
}

func (d *Discovery) fetchBloFin(ctx context.Context) ([]model.ContractMeta, error) {
	var body blofinContractsResp
	_, err := d.client.R().SetContext(ctx).SetResult(&body).Get(d.endpoints[model.VenueBloFin])
	if err != nil {
		return nil, err
	}

	out := make([]model.ContractMeta, 0, len(body.Data))
	for _, c := range body.Data {
		if c.State != "live" {
			continue
		}
		base := c.BaseCurrency
		if base == "" {
			base = strings.SplitN(c.InstID, "-", 2)[0]
		}
		quote := c.QuoteCurrency
		if quote == "" {
			quote = "USDT"
		}
		out = append(out, model.ContractMeta{
			Symbol:      c.InstID,
			Base:        base,
			Quote:       quote,
			Venue:       model.VenueBloFin,
			ListingTS:   parseInt64(c.ListTime),
			MaxLeverage: int(parseFloat(c.MaxLeverage)),
			MinSize:     parseFloat(c.MinSize),
			Enabled:     true,
		})
	}
	return out, nil
}

type hyperliquidMetaResp struct {
	Universe []struct {
		Name        string `json:"name"`
		MaxLeverage int    `json:"maxLeverage"`
		SzDecimals  int    `json:"szDecimals"`
	} `json:"universe"`
}

// fetchHyperliquid has no real listing timestamp in the meta response, so it
// synthesizes one the same way the source client did: a recency-ordered
// stagger starting 3 days back, which keeps freshly added symbols showing
// up under "new listings" without claiming a false exact date.
func (d *Discovery) fetchHyperliquid(ctx context.Context) ([]model.ContractMeta, error) {
	var body hyperliquidMetaResp
	_, err := d.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "meta"}).
		SetResult(&body).
		Post(d.endpoints[model.VenueHyperliquid])
	if err != nil {
		return nil, err
	}

	baseTime := time.Now().Add(-3*24*time.Hour).UnixMilli()
	out := make([]model.ContractMeta, 0, len(body.Universe))
	for i, m := range body.Universe {
		leverage := m.MaxLeverage
		if leverage == 0 {
			leverage = 50
		}
		out = append(out, model.ContractMeta{
			Symbol:      m.Name,
			Base:        m.Name,
			Quote:       "USD",
			Venue:       model.VenueHyperliquid,
			ListingTS:   baseTime - int64(i)*1000,
			MaxLeverage: leverage,
			MinSize:     float64(m.SzDecimals),
			Enabled:     true,
		})
	}
	return out, nil
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
