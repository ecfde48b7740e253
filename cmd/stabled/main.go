package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stablecore/config"
	"stablecore/core/events"
	"stablecore/core/token"
	"stablecore/core/types"
	"stablecore/crypto"
	"stablecore/native/stable"
	"stablecore/observability/logging"
	"stablecore/rpc"
	"stablecore/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STABLE_ENV"))
	logger := logging.Setup("stabled", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env != "" {
		cfg.Environment = env
	}

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	engine, assets, err := buildEngine(cfg, db, logger)
	if err != nil {
		logger.Error("Failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, assets, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// buildEngine wires the stable token, collateral ledgers, and price feeds
// described by the configuration into a ready engine backed by the given
// database.
func buildEngine(cfg *config.Config, db storage.Database, logger *slog.Logger) (*stable.Engine, map[string]crypto.Address, error) {
	moduleAddr := deriveAddress(crypto.AccountPrefix, "stablecore/module")
	treasuryAddr := deriveAddress(crypto.AccountPrefix, "stablecore/treasury")

	stableToken := token.NewLedger(cfg.StableName, cfg.StableSymbol, moduleAddr)

	assets := make([]crypto.Address, 0, len(cfg.Collateral))
	tokens := make([]stable.CollateralToken, 0, len(cfg.Collateral))
	feeds := make([]stable.PriceFeed, 0, len(cfg.Collateral))
	assetsBySymbol := make(map[string]crypto.Address, len(cfg.Collateral))
	var heartbeat time.Duration

	for _, entry := range cfg.Collateral {
		price, err := entry.InitialPrice()
		if err != nil {
			return nil, nil, err
		}
		assetAddr := deriveAddress(crypto.AssetPrefix, "stablecore/asset/"+entry.Symbol)
		assets = append(assets, assetAddr)
		tokens = append(tokens, token.NewLedger(entry.Symbol, entry.Symbol, treasuryAddr))
		feeds = append(feeds, stable.NewStaticFeed(price, entry.FeedDecimals))
		assetsBySymbol[entry.Symbol] = assetAddr

		if entry.HeartbeatSeconds > 0 {
			hb := time.Duration(entry.HeartbeatSeconds) * time.Second
			if heartbeat == 0 || hb < heartbeat {
				heartbeat = hb
			}
		}

		logger.Info("Collateral asset registered",
			slog.String("symbol", entry.Symbol),
			slog.String("address", assetAddr.String()),
			slog.String("price", price.String()),
		)
	}

	engine, err := stable.NewEngine(moduleAddr, stableToken, assets, tokens, feeds)
	if err != nil {
		return nil, nil, err
	}
	engine.SetState(stable.NewStoreState(db))
	engine.SetEmitter(&logEmitter{log: logger})
	if heartbeat > 0 {
		engine.SetHeartbeat(heartbeat)
	}

	logger.Info("Stable engine ready",
		slog.String("module", moduleAddr.String()),
		slog.String("treasury", treasuryAddr.String()),
		slog.Int("assets", len(assets)),
	)
	return engine, assetsBySymbol, nil
}

// openDatabase picks the position store backend. An empty data directory
// keeps everything in memory, which is what the test networks run with.
func openDatabase(dataDir string) (storage.Database, error) {
	if strings.TrimSpace(dataDir) == "" {
		return storage.NewMemDB(), nil
	}
	return storage.NewLevelDB(dataDir)
}

// deriveAddress produces a stable address from a label so restarts keep the
// same module and asset identities.
func deriveAddress(prefix crypto.AddressPrefix, label string) crypto.Address {
	digest := ethcrypto.Keccak256([]byte(label))
	return crypto.NewAddress(prefix, digest[len(digest)-20:])
}

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("type", evt.EventType())}
	if detailed, ok := evt.(interface{ Event() *types.Event }); ok {
		if inner := detailed.Event(); inner != nil {
			for key, value := range inner.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	l.log.Info("engine event", attrs...)
}
