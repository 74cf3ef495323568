// Package main provides the entry point for the ayur-trace provenance service.
// The service serves batch details and provenance chains assembled from the
// supply chain contract, submits lifecycle writes and, optionally, watches the
// ledger to purge its caches and relay lifecycle events to NATS JetStream.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/tarshitsr24/Temp-ayur-trace/db"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/actor"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/aggregator"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/api"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/backfill"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/batch"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/cache"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/events"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/identity"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/lifecycle"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/pool"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/processor"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/pub"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/stats"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/syncer"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/util"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const (
	defaultGracefulShutdownPeriod = time.Second * 30

	// Pool sizes default to this many workers per CPU.
	defaultWorkerPoolMultiplier = 3
)

var (
	build = "dev"

	confFlag string

	lo *slog.Logger
	ko *koanf.Koanf
)

func bootstrap() {
	flag.StringVar(&confFlag, "config", "config.toml", "Path to configuration file (TOML format)")
	flag.Parse()

	lo = util.InitLogger()
	ko = util.InitConfig(lo, confFlag)
}

func main() {
	bootstrap()
	lo.Info("starting ayur-trace service", "build", build, "version", build)

	var wg sync.WaitGroup
	ctx, stop := notifyShutdown()

	ledger, err := chain.NewRPCFetcher(chain.EthRPCOpts{
		RPCEndpoint:     ko.MustString("chain.rpc_endpoint"),
		ChainID:         ko.MustInt64("chain.chainid"),
		ContractAddress: ko.MustString("chain.contract_address"),
		ABI:             ko.MustString("chain.abi"),
		PrivateKey:      ko.String("chain.private_key"),
		RateLimit:       ko.Float64("chain.rate_limit"),
		Logg:            lo,
	})
	if err != nil {
		lo.Error("could not initialize chain client", "error", err)
		os.Exit(1)
	}
	lo.Debug("loaded rpc fetcher")

	store, err := db.New(db.DBOpts{
		Logg:   lo,
		DBType: ko.MustString("core.db_type"),
		Path:   ko.String("core.db_path"),
	})
	if err != nil {
		lo.Error("could not initialize db", "error", err)
		os.Exit(1)
	}
	lo.Debug("loaded db")

	redisClient := util.InitRedis(lo, ko)

	details := cache.New[provenance.BatchDetails](cache.CacheOpts{
		Name:       "details",
		CacheType:  ko.MustString("cache.cache_type"),
		TTL:        time.Duration(ko.MustInt("cache.details_ttl_secs")) * time.Second,
		MaxEntries: ko.Int("cache.max_entries"),
		Redis:      redisClient,
		Logg:       lo,
	})
	chains := cache.New[provenance.Chain](cache.CacheOpts{
		Name:       "chains",
		CacheType:  ko.MustString("cache.cache_type"),
		TTL:        time.Duration(ko.MustInt("cache.chain_ttl_secs")) * time.Second,
		MaxEntries: ko.Int("cache.max_entries"),
		Redis:      redisClient,
		Logg:       lo,
	})
	lo.Debug("loaded caches")

	fanoutPool := pool.New(pool.PoolOpts{
		Logg:        lo,
		WorkerCount: poolSize("core.pool_size"),
	})
	lo.Debug("bootstrapped fan-out pool")

	negotiator := schema.NewNegotiator(ledger)
	identities := identity.NewContextProvider(identity.Identity{
		ActorID: ko.String("identity.default_actor_id"),
		Name:    ko.String("identity.default_actor_name"),
		Role:    ko.String("identity.default_actor_role"),
	})

	batches := batch.New(batch.ResolverOpts{
		Chain:       ledger,
		Negotiator:  negotiator,
		Cache:       details,
		Mappings:    store,
		IPFSGateway: ko.String("ipfs.gateway"),
		Logg:        lo,
	})
	fetcher := events.New(events.FetcherOpts{
		Chain:         ledger,
		Negotiator:    negotiator,
		ProductWindow: uint64(ko.Int64("aggregator.product_window")),
		Logg:          lo,
	})
	chainAggregator := aggregator.New(aggregator.AggregatorOpts{
		Batches:          batches,
		Events:           fetcher,
		Chain:            ledger,
		Cache:            chains,
		Pool:             fanoutPool,
		ProductScanLimit: ko.Int("aggregator.product_scan_limit"),
		TimestampLimit:   ko.Int("aggregator.timestamp_limit"),
		Logg:             lo,
	})
	actors := actor.New(actor.ResolverOpts{
		Chain:      ledger,
		Negotiator: negotiator,
		Batches:    batches,
		Events:     fetcher,
		Identity:   identities,
		Pool:       fanoutPool,
		Logg:       lo,
	})
	writer := lifecycle.New(lifecycle.WriterOpts{
		Chain:      ledger,
		Negotiator: negotiator,
		Identity:   identities,
		Mappings:   store,
		Details:    batches,
		Logg:       lo,
	})
	lo.Debug("bootstrapped resolvers")

	tables := map[string]cache.Table{
		"details": details,
		"chains":  chains,
	}
	pools := map[string]*pool.Pool{
		"fanout": fanoutPool,
	}

	var (
		publisher   pub.Pub
		watcherPool *pool.Pool
		chainSyncer *syncer.Syncer
		backfiller  *backfill.Backfill
	)

	watcherEnabled := ko.Bool("watcher.enable")
	if watcherEnabled {
		if ko.Bool("jetstream.enable") {
			publisher, err = pub.NewJetStreamPub(pub.JetStreamOpts{
				Endpoint:        ko.MustString("jetstream.endpoint"),
				PersistDuration: time.Duration(ko.MustInt("jetstream.persist_duration_hrs")) * time.Hour,
				Logg:            lo,
			})
			if err != nil {
				lo.Error("could not initialize jetstream pub", "error", err)
				os.Exit(1)
			}
			lo.Debug("loaded jetstream publisher")
		} else {
			publisher = pub.NewLogPub(lo)
		}

		router := bootstrapEventRouter(publisher.Send)
		lo.Debug("bootstrapped event router", "routes", router.Routes())

		blockProcessor := processor.NewProcessor(processor.ProcessorOpts{
			Chain:           ledger,
			DB:              store,
			Router:          router,
			Tables:          tables,
			ContractAddress: ko.MustString("chain.contract_address"),
			Logg:            lo,
		})

		watcherPool = pool.New(pool.PoolOpts{
			Logg:        lo,
			WorkerCount: poolSize("watcher.pool_size"),
			Processor:   blockProcessor,
		})
		pools["watcher"] = watcherPool
		lo.Debug("bootstrapped watcher pool")
	}

	statsProvider := stats.New(stats.StatsOpts{
		Tables: tables,
		Pools:  pools,
		Logg:   lo,
	})
	lo.Debug("bootstrapped stats provider")

	if watcherEnabled {
		chainSyncer, err = syncer.New(syncer.SyncerOpts{
			DB:                store,
			Chain:             ledger,
			Logg:              lo,
			Pool:              watcherPool,
			Stats:             statsProvider,
			Heads:             headSubscriber(ko.MustString("chain.rpc_endpoint"), ledger),
			StartBlock:        ko.Int64("chain.start_block"),
			WebSocketEndpoint: ko.String("chain.ws_endpoint"),
		})
		if err != nil {
			lo.Error("could not initialize chain syncer", "error", err)
			os.Exit(1)
		}
		lo.Debug("bootstrapped realtime syncer")

		backfiller = backfill.New(backfill.BackfillOpts{
			BatchSize: ko.Int("core.batch_size"),
			DB:        store,
			Logg:      lo,
			Pool:      watcherPool,
		})
		lo.Debug("bootstrapped backfiller")
	}

	apiServer := &http.Server{
		Addr: ko.MustString("api.address"),
		Handler: api.New(api.APIOpts{
			Batches: batches,
			Chains:  chainAggregator,
			Actors:  actors,
			Writer:  writer,
			Meta:    store,
			Stats:   statsProvider,
			Auth: identity.NewAuthenticator(identity.AuthenticatorOpts{
				Secret:   ko.String("identity.secret"),
				Issuer:   ko.String("identity.issuer"),
				TokenTTL: time.Duration(ko.Int("identity.token_ttl_hrs")) * time.Hour,
				Logg:     lo,
			}),
			Logg: lo,
		}),
	}
	lo.Debug("bootstrapped API server")
	lo.Debug("starting routines")

	wg.Add(1)
	go func() {
		defer wg.Done()
		statsProvider.StartStatsPrinter()
	}()

	if watcherEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chainSyncer.Start()
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if queued, err := backfiller.Run(false); err != nil {
				lo.Error("backfiller initial run error", "error", err)
			} else {
				lo.Info("completed initial backfill run", "queued", queued)
			}
			backfiller.Start()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		apiAddr := ko.MustString("api.address")
		lo.Info("starting API server", "address", apiAddr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lo.Error("API server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	lo.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulShutdownPeriod)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		lo.Info("stopping service components")
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			lo.Error("API server shutdown error", "error", err)
		}
		if watcherEnabled {
			chainSyncer.Stop()
			backfiller.Stop()
			watcherPool.Stop()
			publisher.Close()
		}
		fanoutPool.Stop()
		statsProvider.Stop()
		for name, c := range map[string]interface{ Close() error }{"details": details, "chains": chains} {
			if err := c.Close(); err != nil {
				lo.Error("cache close error", "cache", name, "error", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				lo.Error("redis close error", "error", err)
			}
		}
		if err := store.Cleanup(); err != nil {
			lo.Error("database cleanup error", "error", err)
		}
		if err := store.Close(); err != nil {
			lo.Error("database close error", "error", err)
		}
		lo.Info("graceful shutdown complete")
	}()

	shutdownDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		stop()
		lo.Info("service stopped successfully")
		os.Exit(0)
	case <-shutdownCtx.Done():
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			stop()
			lo.Error("graceful shutdown timeout exceeded, forcing exit")
			os.Exit(1)
		}
	}
}

// poolSize reads a worker count, defaulting to a multiple of the CPU count.
func poolSize(key string) int {
	size := ko.Int(key)
	if size <= 0 {
		size = runtime.NumCPU() * defaultWorkerPoolMultiplier
		lo.Info("using default worker pool size", "key", key, "cpu_count", runtime.NumCPU(), "pool_size", size)
	}
	return size
}

// headSubscriber reuses the ledger connection for head subscriptions when it
// already runs over a websocket. nil makes the syncer dial chain.ws_endpoint.
func headSubscriber(rpcEndpoint string, ledger *chain.EthRPC) syncer.HeadSubscriber {
	if !strings.HasPrefix(rpcEndpoint, "ws://") && !strings.HasPrefix(rpcEndpoint, "wss://") {
		return nil
	}
	return ledger.EthClient()
}

func notifyShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
}
