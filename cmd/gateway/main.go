package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/wyfcoding/venuegateway/internal/gateway/application"
	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
	mysqlrepo "github.com/wyfcoding/venuegateway/internal/gateway/infrastructure/persistence/mysql"
	redisrepo "github.com/wyfcoding/venuegateway/internal/gateway/infrastructure/persistence/redis"
	"github.com/wyfcoding/venuegateway/internal/gateway/infrastructure/transport"
	"github.com/wyfcoding/venuegateway/internal/gateway/interfaces/events"
	httpserver "github.com/wyfcoding/venuegateway/internal/gateway/interfaces/http"
	"github.com/wyfcoding/venuegateway/pkg/config"
	"github.com/wyfcoding/venuegateway/pkg/logger"
	"github.com/wyfcoding/venuegateway/pkg/metrics"
)

var configPath = flag.String("config", "configs/gateway/config.toml", "config file path")

// gatewaySink is the upstream side of the multiplexer: data messages fan out
// to Kafka and the lookup cache, re-entries loop back into the inbound port.
type gatewaySink struct {
	log       *slog.Logger
	mux       *application.Multiplexer
	publisher *events.Publisher
	recorder  *redisrepo.ResultRecorder
	audit     *mysqlrepo.AuditRepository
}

func (s *gatewaySink) RaiseNewOut(msg domain.Message) {
	ctx := context.Background()
	if s.recorder != nil {
		s.recorder.Observe(ctx, msg)
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, msg)
	}
	if s.audit != nil && msg.Head().Error != nil {
		h := msg.Head()
		go func(txID int64, kind, detail string) {
			actx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = s.audit.Record(actx, txID, kind, domain.AuditActionNonExist, "", detail)
		}(int64(h.OriginalTxID), msg.Type().String(), h.Error.Error())
	}
	s.log.Debug("raised upstream", "type", msg.Type().String(), "original", msg.Head().OriginalTxID)
}

func (s *gatewaySink) OnSendIn(msg domain.Message) {
	s.mux.SendIn(msg)
}

func main() {
	flag.Parse()

	// 1. Config
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	log := logger.New(cfg.Log, cfg.ServiceName)
	slog.SetDefault(log)

	// 3. Metrics
	mets := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		go func() {
			if err := mets.ExposeHTTP(cfg.Metrics.Port); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	// 4. Redis (查询结果缓存)
	var recorder *redisrepo.ResultRecorder
	if cfg.Redis.Addr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unavailable, lookup cache disabled", "error", err)
		} else {
			cache := redisrepo.NewLookupCache(redisClient, time.Duration(cfg.Redis.LookupCacheTTLSeconds)*time.Second)
			recorder = redisrepo.NewResultRecorder(cache, log)
		}
		cancel()
	}

	// 5. MySQL (订阅审计)
	var audit *mysqlrepo.AuditRepository
	if cfg.Database.Enabled {
		db, err := gorm.Open(mysql.Open(cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			slog.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		if cfg.Environment == "dev" {
			if err := db.AutoMigrate(&mysqlrepo.SubscriptionAuditPO{}); err != nil {
				slog.Error("failed to migrate database", "error", err)
			}
		}
		audit = mysqlrepo.NewAuditRepository(db)
	}

	// 6. Kafka
	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		publisher = events.NewPublisher(cfg.Kafka.Brokers, log)
		defer publisher.Close()
	}

	// 7. Multiplexer + venue transport
	sink := &gatewaySink{log: log, publisher: publisher, recorder: recorder, audit: audit}

	var mux *application.Multiplexer
	adapter := transport.NewWebSocketAdapter(transport.Config{
		Endpoint:               cfg.Venue.Endpoint,
		ReconnectInterval:      time.Duration(cfg.Venue.ReconnectIntervalSeconds) * time.Second,
		SubscriptionBySecurity: cfg.Venue.SubscriptionBySecurity,
	}, func(msg domain.Message) {
		mux.SendIn(msg)
	}, func(msg domain.Message) {
		if err := mux.HandleOut(msg); err != nil {
			slog.Error("outbound dispatch failed", "type", msg.Type().String(), "error", err)
		}
	}, log)

	opts := application.Options{
		RestoreOnErrorReconnect:      cfg.Gateway.RestoreOnErrorReconnect,
		RestoreOnNormalReconnect:     cfg.Gateway.RestoreOnNormalReconnect,
		SupportMultipleSubscriptions: cfg.Gateway.SupportMultipleSubscriptions,
		NonExistSubscriptionAsError:  cfg.Gateway.NonExistSubscriptionAsError,
		LookupTimeout:                cfg.Gateway.LookupTimeout(),
	}
	var err error
	mux, err = application.NewMultiplexer(adapter, sink, opts, log, mets)
	if err != nil {
		slog.Error("failed to create multiplexer", "error", err)
		os.Exit(1)
	}
	sink.mux = mux
	if audit != nil {
		mux.SetAuditTrail(audit)
	}

	// 8. HTTP control surface
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	handler := httpserver.NewGatewayHandler(mux, adapter, recorder, audit)
	handler.RegisterRoutes(r.Group("/api"))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: r,
	}

	// 9. Run
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return adapter.Run(ctx)
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = adapter.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}
