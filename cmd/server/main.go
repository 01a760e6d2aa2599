package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgewatch/edgewatch/internal/breaker"
	"github.com/edgewatch/edgewatch/internal/capability"
	"github.com/edgewatch/edgewatch/internal/config"
	"github.com/edgewatch/edgewatch/internal/discovery"
	"github.com/edgewatch/edgewatch/internal/execution"
	"github.com/edgewatch/edgewatch/internal/handler"
	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/monitor"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/edgewatch/edgewatch/internal/quotes"
	"github.com/edgewatch/edgewatch/internal/repository"
	"github.com/edgewatch/edgewatch/internal/risk"
	"github.com/edgewatch/edgewatch/internal/shard"
	"github.com/edgewatch/edgewatch/internal/venue"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// recorder is the union of the persistence hooks the pipeline writes to.
type recorder interface {
	monitor.Recorder
	risk.RejectionRecorder
	execution.OrderRecorder
}

func main() {
	// 0. Environment and logging
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Persistence (Postgres > no-op) and shared state (Redis > memory)
	var rec recorder = repository.NopRecorder{}
	if cfg.Database.DSN != "" {
		db, derr := repository.NewDB(cfg.Database.DSN)
		if derr != nil {
			logger.Error("Failed to connect to Postgres, audit trail disabled", "error", derr)
		} else {
			logger.Info("Connected to PostgreSQL")
			persister := repository.NewPersister(db)
			go persister.Run(ctx)
			rec = persister
		}
	}

	localKS := execution.NewFileKillSwitch(cfg.Execution.KillSwitchFile)
	var killSwitch execution.KillSwitch = localKS
	var idemStore execution.IdempotencyStore = execution.NewInMemIdempotencyStore(
		time.Duration(cfg.Execution.IdempotencyTTLSec) * time.Second)
	var bus shard.Bus = shard.NewInMemoryBus()

	if cfg.Redis.Addr != "" {
		redisClient, rerr := repository.NewRedisClient(ctx, cfg.Redis)
		if rerr != nil {
			logger.Error("Failed to connect to Redis, falling back to local state", "error", rerr)
		} else {
			logger.Info("Connected to Redis")
			killSwitch = execution.NewCombinedKillSwitch(repository.NewRedisKillSwitch(redisClient), localKS)
			idemStore = repository.NewRedisIdempotencyStore(redisClient,
				time.Duration(cfg.Execution.IdempotencyTTLSec)*time.Second)
			bus = repository.NewRedisBus(redisClient)
		}
	}

	// 2. Breakers and capabilities
	breakers := breaker.NewRegistry(cfg.Breaker.FailureThreshold,
		time.Duration(cfg.Breaker.OpenSeconds)*time.Second)

	upstreamTimeout := time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond
	registry := capability.NewRegistry(map[model.MarketType]capability.Capability{
		model.MarketSports:      capability.SportsCapability(cfg.Upstream.SportsURL, upstreamTimeout),
		model.MarketPriceTarget: capability.PriceTargetCapability(cfg.Upstream.PriceTargetURL, upstreamTimeout),
		model.MarketIndicator:   capability.IndicatorCapability(cfg.Upstream.IndicatorURL, upstreamTimeout),
		model.MarketElection:    capability.ElectionCapability(cfg.Upstream.ElectionURL, upstreamTimeout),
	})

	// 3. Quote plumbing: streams where the venue has one, poll fallback
	// otherwise, all feeding the one ingest channel.
	quoteCh := make(chan model.Quote, 1024)
	cache := quotes.NewCache()
	go quotes.RunIngest(ctx, quoteCh, cache)

	streams := make(map[string]*quotes.Stream)
	pollers := make(map[string]*quotes.Poller)
	var clients []*venue.Client
	for _, vc := range cfg.Venues {
		client := venue.NewClient(vc.Name, vc.BaseURL,
			time.Duration(cfg.Execution.SubmitTimeoutMs)*time.Millisecond,
			breakers.Get(vc.Name))
		clients = append(clients, client)

		if vc.WSURL != "" {
			st := quotes.NewStream(vc.Name, vc.WSURL, quoteCh)
			st.Start()
			streams[vc.Name] = st
		} else {
			p := quotes.NewPoller(client, time.Duration(cfg.Monitor.TickIntervalMs)*time.Millisecond, quoteCh)
			go p.Run(ctx)
			pollers[vc.Name] = p
		}
	}
	router := venue.NewRouter(clients)

	// 4. Risk gate
	bankroll := decimal.NewFromFloat(cfg.Risk.InitialBankroll)
	if len(clients) > 0 {
		if bal, berr := clients[0].Balance(ctx); berr == nil && bal.IsPositive() {
			logger.Info("Seeding ledger from venue balance", "balance", bal.StringFixed(2))
			bankroll = bal
		}
	}
	ledger := risk.NewLedger(bankroll)
	limits := risk.Limits{
		MaxDailyLoss:         decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		MaxEventExposure:     decimal.NewFromFloat(cfg.Risk.MaxEventExposure),
		MaxCategoryExposure:  decimal.NewFromFloat(cfg.Risk.MaxCategoryExposure),
		MaxPositionsPerEvent: cfg.Risk.MaxPositionsPerEv,
		AllowOpposing:        cfg.Risk.AllowOpposing,
		ApprovalCooldown:     time.Duration(cfg.Risk.ApprovalCooldownSec) * time.Second,
	}
	sizer := risk.NewSizer(cfg.Risk.KellyFraction, cfg.Risk.MaxBankrollPct)

	signalCh := make(chan model.Signal, 256)
	execCh := make(chan model.ExecutionRequest, 64)
	gate := risk.NewGate(ledger, ledger, sizer, limits, rec, execCh)
	go gate.Run(ctx, signalCh)

	// 5. Execution gateway
	gateway := execution.NewGateway(execution.Options{
		Mode:           execution.Mode(cfg.Execution.Mode),
		LiveConfirm:    cfg.Execution.LiveConfirm,
		LiveConfirmEnv: cfg.Execution.LiveConfirmEnv,
		OrdersPerMin:   cfg.Execution.OrdersPerMinute,
		OrdersPerHour:  cfg.Execution.OrdersPerHour,
		MinPrice:       decimal.NewFromFloat(cfg.Execution.MinPrice),
		MaxPrice:       decimal.NewFromFloat(cfg.Execution.MaxPrice),
		MinSize:        decimal.NewFromFloat(cfg.Execution.MinSize),
		MaxSize:        decimal.NewFromFloat(cfg.Execution.MaxSize),
		SubmitTimeout:  time.Duration(cfg.Execution.SubmitTimeoutMs) * time.Millisecond,
		SubmitRetries:  cfg.Execution.SubmitRetries,
	}, killSwitch, idemStore, router, rec, ledger)
	go gateway.Run(ctx, execCh)

	// 6. Monitoring: supervisor + this process's shard agent
	supervisor := shard.NewSupervisor(bus, shard.SupervisorOptions{
		HeartbeatInterval: time.Duration(cfg.Shard.HeartbeatIntervalSec) * time.Second,
		MissThreshold:     cfg.Shard.MissThreshold,
		ZombieInterval:    time.Duration(cfg.Shard.ZombieIntervalSec) * time.Second,
	})

	detectors := monitor.NewDetectorSet(monitor.DetectorOptions{
		MinEdge:            cfg.Detector.MinEdge,
		ArbMinProfit:       cfg.Detector.ArbMinProfit,
		StateChangeEnabled: cfg.Monitor.StateChangeEnabled,
		StateChangeMinMove: cfg.Detector.StateChangeMinMove,
	}, func(name string) monitor.VenueParams {
		vc := cfg.VenueByName(name)
		return monitor.VenueParams{
			FeeBps:   vc.FeeBps,
			MinDepth: decimal.NewFromFloat(vc.MinDepth),
		}
	}, monitor.NewDebouncer(
		time.Duration(cfg.Detector.DebounceSeconds)*time.Second,
		cfg.Detector.PruneMultiplier))

	manager := monitor.NewManager(registry, breakers, cache, detectors, rec, signalCh,
		monitor.Options{
			TickInterval: time.Duration(cfg.Monitor.TickIntervalMs) * time.Millisecond,
			QuoteTTL:     time.Duration(cfg.Monitor.QuoteTTLSeconds) * time.Second,
			WarnInterval: time.Duration(cfg.Monitor.WarnIntervalSec) * time.Second,
		}, supervisor.Complete)

	events := repository.NewEventStore()
	source := &resolvingEventSource{
		store:     events,
		discovery: discovery.NewClient(cfg.Discovery, breakers.Get("discovery")),
		streams:   streams,
		pollers:   pollers,
		log:       logger.Component("events"),
	}
	agent := shard.NewAgent(cfg.Shard.ID, bus, manager, source,
		time.Duration(cfg.Shard.HeartbeatIntervalSec)*time.Second)

	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("supervisor stopped", "error", err)
		}
	}()
	go func() {
		if err := agent.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("shard agent stopped", "error", err)
		}
	}()

	// 7. Admin API with graceful shutdown
	adminHandler := handler.NewAdminHandler(cfg, supervisor, manager, killSwitch, ledger, events)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: adminHandler.Router(),
	}

	go func() {
		logger.Info("edgewatch started",
			"port", cfg.Server.Port,
			"mode", cfg.Execution.Mode,
			"shard_id", cfg.Shard.ID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	manager.Shutdown()
	for _, st := range streams {
		st.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	logger.Info("Server exiting")
}

// resolvingEventSource looks up registered events and, on first resolution,
// asks discovery for the event's markets and subscribes the quote feeds.
type resolvingEventSource struct {
	store     *repository.EventStore
	discovery *discovery.Client
	streams   map[string]*quotes.Stream
	pollers   map[string]*quotes.Poller
	log       *slog.Logger
}

func (s *resolvingEventSource) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	refs, derr := s.discovery.Resolve(ctx, event)
	if derr != nil {
		s.log.Warn("market discovery failed, event will monitor without quotes until retry",
			"event_id", eventID, "error", derr)
		return event, nil
	}

	perVenue := make(map[string][]string)
	for _, ref := range refs {
		perVenue[ref.Venue] = append(perVenue[ref.Venue], ref.MarketID)
	}
	for venueName, marketIDs := range perVenue {
		if st, ok := s.streams[venueName]; ok {
			st.Subscribe(marketIDs)
		}
		if p, ok := s.pollers[venueName]; ok {
			p.Subscribe(marketIDs)
		}
	}
	s.log.Info("event markets resolved",
		"event_id", eventID, "markets", len(refs))
	return event, nil
}
