// Command objecttreefs mounts an S3 bucket as a POSIX filesystem.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s3treefs/s3treefs/internal/buffer"
	"github.com/s3treefs/s3treefs/internal/cache"
	"github.com/s3treefs/s3treefs/internal/config"
	"github.com/s3treefs/s3treefs/internal/fuse"
	healthmon "github.com/s3treefs/s3treefs/internal/health"
	"github.com/s3treefs/s3treefs/internal/metrics"
	"github.com/s3treefs/s3treefs/internal/orchestrator"
	s3backend "github.com/s3treefs/s3treefs/internal/storage/s3"
	"github.com/s3treefs/s3treefs/internal/tree"
	"github.com/s3treefs/s3treefs/pkg/api"
	pkghealth "github.com/s3treefs/s3treefs/pkg/health"
	"github.com/s3treefs/s3treefs/pkg/memmon"
	"github.com/s3treefs/s3treefs/pkg/profiling"
	"github.com/s3treefs/s3treefs/pkg/status"
	"github.com/s3treefs/s3treefs/pkg/utils"
)

const healthComponentS3Backend = "s3-backend"

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML configuration file")
		mountPoint = flag.String("mount", "", "mount point (overrides config)")
		bucket     = flag.String("bucket", "", "S3 bucket name (overrides config)")
		foreground = flag.Bool("foreground", true, "run in the foreground")
		debug      = flag.Bool("debug", false, "expose /debug/sessions on the status server and start a default session")
	)
	flag.Parse()

	if !*foreground {
		log.Println("objecttreefs only supports foreground operation; ignoring -foreground=false")
	}

	cfg := config.NewDefault()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			log.Fatalf("loading config: %v", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatalf("loading environment overrides: %v", err)
	}
	if *bucket != "" {
		cfg.S3.BucketName = *bucket
	}
	if *mountPoint == "" {
		log.Fatal("a mount point is required (-mount)")
	}
	if cfg.S3.BucketName == "" {
		log.Fatal("an S3 bucket is required (-bucket or s3.bucket_name in config)")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := utils.SetupLogging(cfg.Global.LogLevel, cfg.Global.LogFile); err != nil {
		log.Fatalf("configuring logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := s3backend.NewBackend(ctx, cfg.S3.BucketName, &s3backend.Config{
		Region:                  cfg.S3.Region,
		Endpoint:                cfg.S3.Endpoint,
		ForcePathStyle:          cfg.S3.UsePathStyle,
		KeyPrefix:               cfg.S3.KeyPrefix,
		PoolSize:                cfg.Performance.ConnectionPoolSize,
		CircuitBreakerEnabled:   cfg.Network.CircuitBreaker.Enabled,
		CircuitBreakerThreshold: cfg.Network.CircuitBreaker.FailureThreshold,
		CircuitBreakerTimeout:   cfg.Network.CircuitBreaker.Timeout,
	})
	if err != nil {
		log.Fatalf("connecting to S3 backend: %v", err)
	}

	healthMon, err := healthmon.NewEnhancedMonitor(&healthmon.MonitorConfig{
		Enabled:         true,
		MonitorInterval: time.Minute,
		HealthCheckConfig: &healthmon.Config{
			Enabled:          true,
			CheckInterval:    healthCheckInterval(cfg),
			Timeout:          healthCheckTimeout(cfg),
			MaxFailures:      3,
			FailureWindow:    5 * time.Minute,
			RecoveryRequired: 2,
			EnableAlerts:     true,
			AlertThreshold:   2,
			MetricsEnabled:   true,
		},
		AlertingEnabled:    true,
		AutoRecovery:       false,
		ReportingEnabled:   false,
		MetricsIntegration: true,
		LoggingIntegration: true,
	})
	if err != nil {
		log.Fatalf("creating health monitor: %v", err)
	}
	healthTracker := healthMon.Tracker()
	healthTracker.RegisterComponent(healthComponentS3Backend)
	if err := healthMon.RegisterComponent(newS3HealthComponent(backend, healthTracker)); err != nil {
		log.Fatalf("registering s3 backend health check: %v", err)
	}
	if err := backend.HealthCheck(ctx); err != nil {
		healthTracker.RecordError(healthComponentS3Backend, err)
		log.Printf("warning: initial S3 health check failed: %v", err)
	} else {
		healthTracker.RecordSuccess(healthComponentS3Backend)
	}
	if err := healthMon.Start(ctx); err != nil {
		log.Printf("warning: health monitor failed to start: %v", err)
	}
	statusTracker := status.NewTracker(status.TrackerConfig{HealthTracker: healthTracker})

	if *debug {
		dm := utils.GetDebugManager()
		dm.StartSession("main", nil, 0)
		utils.EnableRuntimeProfiling()
		log.Println("debug session \"main\" started; profiling and /debug/sessions are live")
	}

	var apiServer *api.Server
	if cfg.Global.HealthPort != 0 {
		apiServer = api.NewServer(api.ServerConfig{
			Address:       fmt.Sprintf(":%d", cfg.Global.HealthPort),
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    false,
			EnableMetrics: false,
			EnableDebug:   *debug,
		}, statusTracker, healthTracker)
		apiServer.StartBackground()
	}

	var profiler *profiling.MemoryMonitor
	if cfg.Global.ProfilePort != 0 {
		profilerCfg := profiling.DefaultMonitorConfig()
		profilerCfg.Port = cfg.Global.ProfilePort
		profiler = profiling.NewMemoryMonitor(profilerCfg, profiling.DefaultAlertThresholds())
		if err := profiler.Start(ctx); err != nil {
			log.Printf("warning: pprof memory profiler failed to start: %v", err)
			profiler = nil
		}
	}

	var memMonitor *memmon.MemoryMonitor
	if cfg.Monitoring.HealthChecks.Enabled {
		memMonitorCfg := memmon.DefaultMonitorConfig()
		if cfg.Monitoring.HealthChecks.Interval > 0 {
			memMonitorCfg.SampleInterval = cfg.Monitoring.HealthChecks.Interval
		}
		memMonitor = memmon.NewMemoryMonitor(memMonitorCfg)
		if err := memMonitor.Start(ctx); err != nil {
			log.Printf("warning: memory monitor failed to start: %v", err)
			memMonitor = nil
		}
	}

	cacheSize, err := utils.ParseBytes(cfg.Performance.CacheSize)
	if err != nil {
		log.Fatalf("invalid performance.cache_size %q: %v", cfg.Performance.CacheSize, err)
	}
	lru := cache.NewLRUCache(&cache.CacheConfig{
		MaxSize:        cacheSize,
		MaxEntries:     cfg.Cache.MaxEntries,
		TTL:            cfg.Cache.TTL,
		EvictionPolicy: cfg.Cache.EvictionPolicy,
	})
	cacheMng := cache.NewCacheMng(lru)

	fioFactory, err := buffer.NewFactory(ctx, s3backend.NewObjectStore(backend), cacheMng, &cfg.WriteBuffer)
	if err != nil {
		log.Fatalf("starting write buffer manager: %v", err)
	}

	t := tree.New(
		cfg.Filesystem.FileModeOrDefault(tree.DefaultFileMode),
		cfg.Filesystem.DirModeOrDefault(tree.DefaultDirMode),
	)

	orch := orchestrator.New(t, s3backend.NewTreePool(backend), fioFactory, cacheMng, cfg)

	var collector *metrics.Collector
	if cfg.Monitoring.Metrics.Enabled {
		collector, err = metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Port:      cfg.Global.MetricsPort,
			Namespace: "s3treefs",
			Labels:    cfg.Monitoring.Metrics.CustomLabels,
		})
		if err != nil {
			log.Fatalf("starting metrics collector: %v", err)
		}
		if err := collector.Start(ctx); err != nil {
			log.Fatalf("starting metrics server: %v", err)
		}
		defer collector.Stop(ctx)
	}

	mgr := fuse.CreatePlatformMountManager(orch, &fuse.MountConfig{
		MountPoint: *mountPoint,
		Options: &fuse.MountOptions{
			AllowOther:   false,
			AttrTimeout:  cfg.Filesystem.DirCacheMaxTime,
			EntryTimeout: cfg.Filesystem.DirCacheMaxTime,
			FSName:       "s3treefs",
			Subtype:      "s3",
			MaxWrite:     128 * 1024,
		},
		Permissions: &fuse.Permissions{
			UID:      safeUID(),
			GID:      safeGID(),
			FileMode: 0644,
			DirMode:  0755,
		},
	}, collector)

	if err := mgr.Mount(ctx); err != nil {
		log.Fatalf("mounting %s: %v", *mountPoint, err)
	}
	log.Printf("s3treefs mounted at %s (bucket %s)", *mountPoint, cfg.S3.BucketName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received %s, unmounting", sig)

	drainWrites(orch, 10*time.Second)

	if err := mgr.Unmount(); err != nil {
		log.Fatalf("unmount failed: %v", err)
	}

	if err := fioFactory.Mgr.Stop(); err != nil {
		log.Printf("warning: write buffer manager shutdown: %v", err)
	}

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("warning: api server shutdown: %v", err)
		}
		shutdownCancel()
	}

	if err := healthMon.Stop(); err != nil {
		log.Printf("warning: health monitor shutdown: %v", err)
	}

	if memMonitor != nil {
		if err := memMonitor.Stop(); err != nil {
			log.Printf("warning: memory monitor shutdown: %v", err)
		}
	}

	if profiler != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := profiler.Stop(shutdownCtx); err != nil {
			log.Printf("warning: pprof memory profiler shutdown: %v", err)
		}
		shutdownCancel()
	}

	if *debug {
		utils.GetDebugManager().StopSession("main")
		utils.DisableRuntimeProfiling()
	}
}

// drainWrites waits for in-flight write operations to finish before unmounting, mirroring
// the original daemon's shutdown sequence: wait for current_write_ops to drain rather than
// tearing down the mount out from under a write that is still in flight.
func drainWrites(orch *orchestrator.Orchestrator, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for orch.WriteOpsInFlight() > 0 {
		if time.Now().After(deadline) {
			log.Printf("timed out waiting for %d write(s) to drain", orch.WriteOpsInFlight())
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// healthCheckInterval resolves the monitor's check interval, falling back to a sane default when
// monitoring.health_checks.interval is unset.
func healthCheckInterval(cfg *config.Configuration) time.Duration {
	if cfg.Monitoring.HealthChecks.Interval > 0 {
		return cfg.Monitoring.HealthChecks.Interval
	}
	return 30 * time.Second
}

// healthCheckTimeout resolves the monitor's per-check timeout, falling back to a sane default
// when monitoring.health_checks.timeout is unset.
func healthCheckTimeout(cfg *config.Configuration) time.Duration {
	if cfg.Monitoring.HealthChecks.Timeout > 0 {
		return cfg.Monitoring.HealthChecks.Timeout
	}
	return 10 * time.Second
}

// s3HealthComponent bridges the S3 backend's HealthCheck into both the internal/health checker
// (which drives pattern analysis and remediation suggestions) and the pkg/health tracker (which
// drives the /status and /health HTTP surface), so a single probe feeds both.
type s3HealthComponent struct {
	backend *s3backend.Backend
	tracker *pkghealth.Tracker
}

func newS3HealthComponent(backend *s3backend.Backend, tracker *pkghealth.Tracker) *s3HealthComponent {
	return &s3HealthComponent{backend: backend, tracker: tracker}
}

func (c *s3HealthComponent) HealthCheck(ctx context.Context) error {
	err := c.backend.HealthCheck(ctx)
	if err != nil {
		c.tracker.RecordError(healthComponentS3Backend, err)
		return err
	}
	c.tracker.RecordSuccess(healthComponentS3Backend)
	return nil
}

func (c *s3HealthComponent) GetComponentName() string { return healthComponentS3Backend }

func (c *s3HealthComponent) GetComponentType() string { return "storage" }

func safeUID() uint32 {
	uid := os.Getuid()
	if uid < 0 {
		return 0
	}
	return uint32(uid)
}

func safeGID() uint32 {
	gid := os.Getgid()
	if gid < 0 {
		return 0
	}
	return uint32(gid)
}
