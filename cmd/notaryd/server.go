package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/aggregator"
	"github.com/Mindburn-Labs/notary/pkg/api"
	"github.com/Mindburn-Labs/notary/pkg/archive"
	"github.com/Mindburn-Labs/notary/pkg/audit"
	"github.com/Mindburn-Labs/notary/pkg/config"
	"github.com/Mindburn-Labs/notary/pkg/crypto"
	"github.com/Mindburn-Labs/notary/pkg/limiter"
	"github.com/Mindburn-Labs/notary/pkg/observability"
	"github.com/Mindburn-Labs/notary/pkg/policy"
	"github.com/Mindburn-Labs/notary/pkg/store"
)

//nolint:gocognit,gocyclo
func runServer() int {
	log.Println("[notaryd] starting")
	ctx := context.Background()
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	// Namespace profiles are the registry's construction plan; a node
	// with no namespaces has nothing to notarize.
	profiles, err := config.LoadAllProfiles(cfg.ProfilesDir)
	if err != nil {
		log.Fatalf("Failed to load namespace profiles: %v", err)
	}
	if len(profiles) == 0 {
		log.Fatalf("No namespace profiles found in %s (expected namespace_<name>.yaml)", cfg.ProfilesDir)
	}

	// Durable checkpoint boundary. Read before accepting receipts;
	// unreadable is fatal, not degraded.
	var checkpoints store.CheckpointStore
	if cfg.DatabaseURL != "" {
		checkpoints, err = store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open postgres checkpoint store: %v", err)
		}
		log.Println("[notaryd] checkpoints: postgres")
	} else {
		checkpoints, err = store.OpenSQLite(cfg.SQLitePath())
		if err != nil {
			log.Fatalf("Failed to open sqlite checkpoint store: %v", err)
		}
		log.Printf("[notaryd] checkpoints: sqlite (%s)", cfg.SQLitePath())
	}
	defer func() { _ = checkpoints.Close() }()

	keyring, err := crypto.LoadOrCreateKeystore(cfg.KeystorePath)
	if err != nil {
		log.Fatalf("Failed to load keystore: %v", err)
	}
	log.Printf("[notaryd] keystore: ready (master key %s)", crypto.KeyIDFor(keyring.MasterPublicKey()))

	var provider *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Environment = cfg.Environment
		obsCfg.Insecure = cfg.Environment == "development"
		provider, err = observability.New(ctx, obsCfg)
		if err != nil {
			log.Fatalf("Failed to init observability: %v", err)
		}
		log.Println("[notaryd] telemetry: exporting")
	}

	auditLog := audit.NewLogger()

	reg := aggregator.NewRegistry(checkpoints).WithAudit(auditLog)
	if provider != nil {
		reg.WithMetrics(provider)
	}
	for ns, profile := range profiles {
		admission, perr := buildPolicy(ctx, profile)
		if perr != nil {
			log.Fatalf("Failed to build admission policy for %q: %v", ns, perr)
		}
		reg.WithPolicy(admission)

		signer, serr := keyring.ForNamespace(ns)
		if serr != nil {
			log.Fatalf("Failed to derive signing key for %q: %v", ns, serr)
		}
		if rerr := reg.Register(ctx, profile.AggregatorConfig(), signer); rerr != nil {
			log.Fatalf("Failed to register namespace %q: %v", ns, rerr)
		}
	}
	if err := reg.Start(ctx); err != nil {
		log.Fatalf("Failed to start aggregator: %v", err)
	}
	log.Printf("[notaryd] aggregator: %d namespace(s) running", len(profiles))

	var sink archive.Sink
	if cfg.ArchiveSink != "off" {
		sink, err = archive.New(ctx, archive.Config{
			Type:     archive.SinkType(cfg.ArchiveSink),
			Dir:      cfg.ArchiveDir,
			Bucket:   cfg.ArchiveBucket,
			Region:   cfg.ArchiveRegion,
			Endpoint: cfg.ArchiveEndpoint,
			Prefix:   cfg.ArchivePrefix,
			Compress: cfg.ArchiveCompress,
		})
		if err != nil {
			log.Fatalf("Failed to open archive sink: %v", err)
		}
		log.Printf("[notaryd] archive: %s", cfg.ArchiveSink)
	}

	// Downstream consumer: one drain loop per namespace, archiving each
	// emitted block. At-least-once; the archive key is idempotent.
	consumerCtx, stopConsumers := context.WithCancel(ctx)
	var consumers sync.WaitGroup
	for _, ns := range reg.Namespaces() {
		sup, ok := reg.Supervisor(ns)
		if !ok {
			continue
		}
		consumers.Add(1)
		go func(sup *aggregator.Supervisor) {
			defer consumers.Done()
			consume(consumerCtx, sup, sink)
		}(sup)
	}

	var lim limiter.Limiter
	limCfg := limiter.Config{PerSecond: cfg.RateLimitPerSecond, Burst: cfg.RateLimitBurst}
	if cfg.RedisAddr != "" {
		redisLim := limiter.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, limCfg)
		defer func() { _ = redisLim.Close() }()
		lim = redisLim
		log.Println("[notaryd] rate limiter: redis")
	} else {
		localLim := limiter.NewLocalLimiter(limCfg)
		defer localLim.Close()
		lim = localLim
	}

	service := api.NewService(reg)
	middlewares := []func(http.Handler) http.Handler{}
	if cfg.AuthSecret != "" {
		middlewares = append(middlewares, api.AuthMiddleware(api.NewJWTValidator(cfg.AuthSecret)))
		log.Println("[notaryd] auth: bearer tokens required")
	} else {
		log.Println("[notaryd] auth: disabled (AUTH_SECRET not set)")
	}
	middlewares = append(middlewares, api.RateLimitMiddleware(lim))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Chain(service.Routes(), middlewares...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[notaryd] listening on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("[notaryd] received %v, shutting down", sig)
	case err := <-errCh:
		log.Printf("[notaryd] server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Stop supervisors before their consumers so in-flight emissions
	// still have a reader, then drain the consumers.
	reg.Stop()
	stopConsumers()
	consumers.Wait()

	if sink != nil {
		_ = sink.Close()
	}
	if provider != nil {
		_ = provider.Shutdown(shutdownCtx)
	}
	log.Println("[notaryd] stopped")
	return 0
}

// consume drains one namespace's emission channel until shutdown.
func consume(ctx context.Context, sup *aggregator.Supervisor, sink archive.Sink) {
	logger := slog.Default().With("component", "consumer", "namespace", sup.Namespace())
	for {
		select {
		case block := <-sup.Blocks():
			logger.Info("block emitted",
				"height", block.Height,
				"count", block.Count,
				"commitment", block.Commitment.String(),
			)
			if sink == nil {
				continue
			}
			if key, err := sink.Archive(ctx, block); err != nil {
				logger.Error("archive failed", "height", block.Height, "error", err)
			} else {
				logger.Debug("block archived", "key", key)
			}
		case <-ctx.Done():
			return
		}
	}
}

// buildPolicy assembles the optional admission chain from a profile.
// A nil return with nil error means no policy is configured.
func buildPolicy(ctx context.Context, profile *config.NamespaceProfile) (aggregator.AdmissionPolicy, error) {
	var members []aggregator.AdmissionPolicy

	if expr := profile.AdmissionPolicy.CEL; expr != "" {
		cel, err := policy.NewCELPolicy(profile.Namespace+"-cel", expr)
		if err != nil {
			return nil, err
		}
		members = append(members, cel)
	}
	if module := profile.AdmissionPolicy.WASMModule; module != "" {
		wasm, err := os.ReadFile(module)
		if err != nil {
			return nil, err
		}
		manifest := policy.Manifest{
			Name:    profile.AdmissionPolicy.WASMName,
			Version: profile.AdmissionPolicy.WASMVersion,
			Engine:  profile.AdmissionPolicy.WASMEngine,
		}
		if manifest.Name == "" {
			manifest.Name = profile.Namespace + "-wasm"
		}
		wp, err := policy.NewWASMPolicy(ctx, manifest, wasm, policy.DefaultWASMConfig())
		if err != nil {
			return nil, err
		}
		members = append(members, wp)
	}

	switch len(members) {
	case 0:
		return nil, nil
	case 1:
		return members[0], nil
	default:
		return policy.NewChain(members...), nil
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
