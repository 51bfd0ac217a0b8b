// ====================================
// File: cmd/trader/main.go
// ====================================
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ektovd/soltrader/internal/chain"
	"github.com/ektovd/soltrader/internal/config"
	"github.com/ektovd/soltrader/internal/engine"
	"github.com/ektovd/soltrader/internal/jito"
	"github.com/ektovd/soltrader/internal/logger"
	"github.com/ektovd/soltrader/internal/quote"
	"github.com/ektovd/soltrader/internal/route"
	"github.com/ektovd/soltrader/internal/server"
	"github.com/ektovd/soltrader/internal/submit"
	"github.com/ektovd/soltrader/internal/swap"
	"github.com/ektovd/soltrader/internal/wallet"
)

type cliFlags struct {
	configPath  string
	daemon      bool
	mint        string
	pool        string
	direction   string
	amount      float64
	amountPct   float64
	slippageBPS uint64
	bundle      bool
}

func main() {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "path to config file (optional, env vars work alone)")
	flag.BoolVar(&f.daemon, "daemon", false, "run the HTTP daemon instead of a one-shot swap")
	flag.StringVar(&f.mint, "mint", "", "token mint to trade")
	flag.StringVar(&f.pool, "pool", "", "pool address to inspect instead of swapping")
	flag.StringVar(&f.direction, "direction", "", "buy or sell")
	flag.Float64Var(&f.amount, "amount", 0, "exact amount: SOL for buys, tokens for sells")
	flag.Float64Var(&f.amountPct, "amount-pct", 0, "fraction of balance to trade, 0 < pct <= 1")
	flag.Uint64Var(&f.slippageBPS, "slippage-bps", 0, "slippage tolerance override, basis points")
	flag.BoolVar(&f.bundle, "bundle", false, "submit through the bundle relay")
	flag.Parse()

	// .env is a convenience for local runs, absence is fine
	_ = godotenv.Load()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	if f.daemon {
		err = app.runDaemon(ctx, cfg.ListenAddr)
	} else {
		err = app.runSwap(ctx, f)
	}
	if err != nil {
		log.Fatal("trader exited with error", zap.Error(err))
	}
}

// app holds the wired pipeline plus the optional relay-side pieces.
type app struct {
	engine *engine.Engine
	relay  *jito.Client
	tips   *jito.TipFeed
	logger *logger.Logger
}

// buildApp wires the full pipeline from config. The relay pieces stay nil
// when no relay is configured; bundle submission then fails cleanly.
func buildApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	chainClient := chain.NewClient(cfg.RPCURL, log.Logger)

	w, err := wallet.New(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	log.Info("wallet loaded", zap.String("pubkey", w.String()))

	var resolverOpts []route.ResolverOption
	if cfg.RegistryURL != "" {
		resolverOpts = append(resolverOpts,
			route.WithRegistry(route.NewRegistry(cfg.RegistryURL, log.Logger)))
	}
	resolver := route.NewResolver(chainClient, log.Logger, resolverOpts...)

	assembler := swap.NewAssembler(chainClient, w, log.Logger)

	var (
		relay   *jito.Client
		tips    *jito.TipFeed
		relayIf submit.Relay
		tipsIf  submit.TipSource
	)
	if cfg.RelayURL != "" {
		relay = jito.NewClient(cfg.RelayURL, log.Logger)
		tips = jito.NewTipFeed(jito.TipFeedOptions{
			Percentile:  cfg.TipPercentile,
			OverrideSOL: cfg.TipOverride,
			FloorURL:    strings.TrimSuffix(cfg.RelayURL, "/") + "/api/v1/bundles/tip_floor",
			StreamURL:   cfg.TipStreamURL,
		}, log.Logger)
		relayIf = relay
		tipsIf = tips
	}

	submitter := submit.NewSubmitter(chainClient, relayIf, tipsIf, w, submit.Options{
		ComputeUnitLimit: cfg.ComputeUnitLimit,
		ComputeUnitPrice: cfg.ComputeUnitPrice,
		SimulateOnly:     cfg.SimulateOnly,
	}, log.Logger)

	eng := engine.New(chainClient, resolver, assembler, submitter, w, cfg.SlippageBPS, log)

	return &app{engine: eng, relay: relay, tips: tips, logger: log}, nil
}

// runSwap executes one order and prints the landed signatures. With -pool it
// inspects the pool instead.
func (a *app) runSwap(ctx context.Context, f cliFlags) error {
	if f.pool != "" {
		summary, err := a.engine.GetPool(ctx, f.pool)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if f.mint == "" {
		return fmt.Errorf("-mint is required")
	}
	var side quote.Side
	switch strings.ToLower(f.direction) {
	case "buy":
		side = quote.Buy
	case "sell":
		side = quote.Sell
	default:
		return fmt.Errorf("-direction must be buy or sell")
	}
	if f.amount != 0 && f.amountPct != 0 {
		return fmt.Errorf("-amount and -amount-pct are mutually exclusive")
	}

	req := engine.Request{
		Mint:        f.mint,
		Side:        side,
		SlippageBPS: f.slippageBPS,
		Bundle:      f.bundle,
	}
	if f.amountPct != 0 {
		req.Amount = f.amountPct
		req.Sizing = quote.PercentOfBalance
	} else {
		req.Amount = f.amount
		req.Sizing = quote.ExactQuantity
	}

	if f.bundle {
		if a.relay == nil {
			return fmt.Errorf("bundle submission requires relay_url")
		}
		if err := a.relay.PrimeTipAccounts(ctx); err != nil {
			return fmt.Errorf("prime tip accounts: %w", err)
		}
		if err := a.tips.Refresh(ctx); err != nil {
			a.logger.Warn("tip floor unavailable, relying on override", zap.Error(err))
		}
	}

	sigs, err := a.engine.Swap(ctx, req)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		fmt.Println("nothing to do")
		return nil
	}
	for _, sig := range sigs {
		fmt.Println(sig)
	}
	return nil
}

// runDaemon primes the relay, starts the tip stream and serves HTTP until
// the context is cancelled.
func (a *app) runDaemon(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.relay != nil {
		if err := a.relay.PrimeTipAccounts(ctx); err != nil {
			a.logger.Warn("tip accounts unavailable, bundle path degraded", zap.Error(err))
		}
		if err := a.tips.Refresh(ctx); err != nil {
			a.logger.Warn("initial tip floor fetch failed", zap.Error(err))
		}
		g.Go(func() error {
			return a.tips.Run(ctx)
		})
	}

	handlers := server.NewHandlers(a.engine, a.logger.Logger)
	srv := server.New(handlers, addr, a.logger.Logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info("daemon running", zap.String("listen_addr", addr))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
