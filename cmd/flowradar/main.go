// Command flowradar wires configuration, catalog discovery, the watcher
// registry, the broadcast hub, the operator notification sinks, and the
// HTTP/WS edge into one running process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowradar/internal/api"
	"flowradar/internal/broadcast"
	"flowradar/internal/config"
	"flowradar/internal/contracts"
	"flowradar/internal/exchange"
	"flowradar/internal/exchange/bingx"
	"flowradar/internal/exchange/blofin"
	"flowradar/internal/exchange/hyperliquid"
	"flowradar/internal/model"
	"flowradar/internal/notify"
	"flowradar/internal/push"
	"flowradar/internal/registry"
)

const shutdownGrace = 10 * time.Second

func adapterFactory(venue model.Venue) (exchange.Adapter, error) {
	switch venue {
	case model.VenueBingX:
		return bingx.New(), nil
	case model.VenueBloFin:
		return blofin.New(), nil
	case model.VenueHyperliquid:
		return hyperliquid.New(), nil
	default:
		return nil, &exchange.SubscribeRejected{Reason: "unknown venue: " + string(venue)}
	}
}

func main() {
	log.Println("flowradar starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := contracts.NewCatalog()
	discovery := contracts.NewDiscovery(catalog)
	discovery.RefreshOnce(ctx)
	go discovery.Run(ctx)

	hub := broadcast.NewHub(cfg.Thresholds.WhaleOrderUSD * cfg.Thresholds.HighSeverityMultiple)

	if cfg.Notify.TelegramEnabled {
		telegram := notify.NewSink()
		hub.RegisterAlertSink(telegram)
		go telegram.ListenForChatID(ctx.Done())
	}

	fcm := push.NewSink(cfg.Notify.FirebaseCredFile, cfg.Notify.FirebaseTopic)
	hub.RegisterAlertSink(fcm)

	reg := registry.New(catalog, adapterFactory, hub)

	for _, symbol := range cfg.Watch.Symbols {
		for _, venue := range []model.Venue{model.VenueBingX, model.VenueBloFin, model.VenueHyperliquid} {
			inst := model.Instrument{Venue: venue, Symbol: symbol}
			if _, ok := catalog.Get(venue, symbol); !ok {
				continue
			}
			if err := reg.Watch(ctx, inst); err != nil {
				log.Printf("[main] auto-watch %s failed: %v", inst.Key(), err)
			}
		}
	}

	server := api.NewServer(catalog, reg, hub, discovery)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server}

	go func() {
		log.Printf("[main] listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("flowradar shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown: %v", err)
	}
}
