// Command pesahost is the process entrypoint (§6 CLI surface): it loads
// configuration, wires the four pieces of process-wide mutable state named
// in §5 (the ledger lock, the checkout registry, the sandbox handle map,
// and the UI emitter) into the host-facing /rpc and /ws endpoints, and
// shuts every live sandbox down gracefully on SIGINT/SIGTERM, mirroring the
// teacher's cmd/listener/main.go signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/c2b"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/callback"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/common"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/config"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/feetable"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/pipeline"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/registry"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/rpchost"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/sandbox"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store/sqlite"
)

func main() {
	portFlag := flag.Int("port", 0, "host RPC/WS listen port (overrides $PORT; 0 uses the config default)")
	addressFlag := flag.String("address", "", "host listen address (overrides $ADDRESS)")
	webrootFlag := flag.String("webroot", "", "optional static webroot served at / (overrides $WEBROOT)")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("failed to load configuration", zap.Error(err))
	}
	if *portFlag != 0 {
		cfg.Port = uint16(*portFlag)
	}
	if *addressFlag != "" {
		cfg.Address = *addressFlag
	}
	if *webrootFlag != "" {
		cfg.Webroot = *webrootFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("starting pesa sandbox host",
		zap.String("address", cfg.Address), zap.Uint16("port", cfg.Port), zap.String("database", cfg.Database.Path))

	st, err := sqlite.Open(ctx, sqlite.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		zap.L().Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		zap.L().Fatal("failed to apply schema", zap.Error(err))
	}

	fees := feetable.New()
	seeded, err := st.FeeRulesSeeded(ctx)
	if err != nil {
		zap.L().Fatal("failed to check fee rule seeding", zap.Error(err))
	}
	if !seeded {
		zap.L().Info("seeding default fee schedule")
		if err := fees.SeedDefaults(); err != nil {
			zap.L().Fatal("failed to load default fee schedule", zap.Error(err))
		}
		if err := st.SaveFeeRules(ctx, fees.Rules()); err != nil {
			zap.L().Fatal("failed to persist seeded fee schedule", zap.Error(err))
		}
	} else {
		rules, err := st.LoadFeeRules(ctx)
		if err != nil {
			zap.L().Fatal("failed to load fee schedule", zap.Error(err))
		}
		fees.Load(rules)
	}

	hub := events.NewHub()
	bus := events.NewBus(hub, zap.L())
	ldgr := ledger.New(st, fees, zap.L())
	reg := registry.New()
	delivery := callback.New(st, zap.L())
	pl := pipeline.New(delivery, st, zap.L())
	flow := c2b.New(st, ldgr, bus, zap.L()).WithOutboundTimeout(cfg.OutboundTimeout)

	sb := sandbox.New(sandbox.Deps{
		Store:               st,
		Ledger:              ldgr,
		Registry:            reg,
		Events:              bus,
		Hub:                 hub,
		Pipeline:            pl,
		C2B:                 flow,
		AccessTokenTTL:      cfg.AccessTokenTTL,
		RegistryWaitTimeout: cfg.RegistryWaitTimeout,
		Log:                 zap.L(),
	})

	rpc := rpchost.NewHandler(rpchost.Handler{
		Store:    st,
		Ledger:   ldgr,
		Registry: reg,
		Events:   bus,
		Sandbox:  sb,
		C2B:      flow,
		BgCtx:    ctx,
		Log:      zap.L(),
	})

	mux := http.NewServeMux()
	mux.Handle("POST /rpc", rpc)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		events.ServeWS(hub, zap.L(), w, r)
	})
	if cfg.Webroot != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.Webroot)))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("host RPC/WS listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("host server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutdown signal received, stopping sandboxes and host server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := sb.StopAll(shutdownCtx, cfg.ShutdownTimeout); err != nil {
			zap.L().Warn("error stopping live sandboxes", zap.Error(err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("host server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("host exited with error", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("host stopped cleanly")
}
