package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/matcha-check/internal/auth"
	"github.com/example/matcha-check/internal/config"
	"github.com/example/matcha-check/internal/grpcclient"
	"github.com/example/matcha-check/internal/grpcserver"
	"github.com/example/matcha-check/internal/handlers"
	"github.com/example/matcha-check/internal/imageprocessor"
	"github.com/example/matcha-check/internal/logging"
	"github.com/example/matcha-check/internal/matcha"
	"github.com/example/matcha-check/internal/repository"
	"github.com/example/matcha-check/internal/storage"
	"github.com/example/matcha-check/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewRatingRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)

	analyzer, err := matcha.New(cfg.Analyzer)
	if err != nil {
		logger.Fatal("invalid analyzer config", zap.Error(err))
	}
	local := imageprocessor.NewLocalClient(analyzer, logger)

	var processor imageprocessor.Client = local
	if cfg.AnalyzerAddr != "" {
		client, conn, err := grpcclient.DialAnalyzer(ctx, cfg.AnalyzerAddr, logger)
		if err != nil {
			logger.Fatal("failed to connect to analyzer", zap.Error(err))
		}
		defer conn.Close()
		processor = client
	}

	images, err := storage.NewFileStore(cfg.ImageDir, cfg.ImageBaseURL, logger)
	if err != nil {
		logger.Fatal("failed to prepare image store", zap.Error(err))
	}

	cache := usecase.NewRedisCache(redisClient)
	uc := usecase.NewRatingUseCase(repo, cache, processor, images, logger)

	if cfg.GRPCAddr != "" {
		grpcServer, err := startGRPCServer(cfg.GRPCAddr, local, logger)
		if err != nil {
			logger.Fatal("failed to start gRPC server", zap.Error(err))
		}
		defer grpcServer.GracefulStop()
	}

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	r.Static("/images", images.Dir())

	authMiddleware := auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience)
	handlers.RegisterRoutes(r, uc, authMiddleware)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	logger.Info("matcha API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("sampler", cfg.Analyzer.Sampler.Kind),
		zap.String("scoring", cfg.Analyzer.Scoring.Kind),
	)
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func startGRPCServer(addr string, client imageprocessor.Client, logger *zap.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpcserver.New(client, logger)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()
	logger.Info("gRPC analyzer listening", zap.String("addr", addr))
	return srv, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
