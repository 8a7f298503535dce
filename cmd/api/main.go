package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/controlnet"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/credit"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/drawing"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/http/handlers"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/http/httpapi"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra/geoip"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/infra/sdconfig"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/middleware"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/payload"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/gallery"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/qrcode"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/providers/sdapi"
	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	sqlRunner := infra.NewSQLRunner(dbpool, logger)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()
	sdSettings := sdconfig.NewRedisProvider(rdb, cfg.SDConfigKey, cfg.SDConfigTTL)

	uploader, staticDir, err := newUploader(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}
	persister, err := storage.NewPersister(storage.PersisterOptions{
		Uploader:        uploader,
		TransientDir:    cfg.StorageTransientDir,
		DeleteTransient: cfg.StorageDeleteTransient,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init persister")
	}

	generator, err := sdapi.NewClient(sdapi.Options{
		Config:         sdSettings,
		Logger:         &logger,
		RequestTimeout: cfg.SDRequestTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init generation client")
	}
	qr := qrcode.NewClient(qrcode.Options{
		DecodeURL:   cfg.QRDecodeAPIURL,
		DecodeToken: cfg.QRDecodeAPIToken,
		RenderURL:   cfg.QRToolURL,
		Timeout:     cfg.RemoteFetchTimeout,
		Logger:      logger,
	})
	examples := gallery.NewClient(gallery.Options{
		ListURL:      cfg.GalleryListURL,
		DetailURL:    cfg.GalleryDetailURL,
		CollectionID: cfg.GalleryCollectionID,
		MaxPage:      cfg.GalleryMaxPage,
		Timeout:      cfg.RemoteFetchTimeout,
		Logger:       logger,
	})
	text, err := payload.NewTextRenderer(cfg.FontPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load font")
	}

	catalog := controlnet.NewCatalog(sqlRunner)
	ledger := credit.NewLedger(sqlRunner, logger)
	recorder := drawing.NewRecorder(sqlRunner)
	orchestrator, err := drawing.NewOrchestrator(drawing.Options{
		Credits:       ledger,
		Builder:       payload.NewBuilder(catalog, qr, examples, text, logger),
		Generator:     generator,
		Persister:     persister,
		Recorder:      recorder,
		Config:        sdSettings,
		Category:      cfg.StorageCategory,
		DBTimeout:     cfg.DBTimeout,
		BuildTimeout:  cfg.BuildTimeout,
		UploadTimeout: cfg.UploadTimeout,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init orchestrator")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	app := handlers.NewApp(handlers.Options{
		Drawer:         orchestrator,
		Profiles:       catalog,
		Drawings:       recorder,
		Credits:        ledger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		HealthChecks: map[string]handlers.HealthCheck{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Logger: logger,
	})
	router := httpapi.NewRouter(app, httpapi.Options{
		Tokens:          middleware.NewHMACTokenChecker(cfg.JWTSecret, cfg.JWTIssuer),
		CountryLookup:   resolver.Lookup(),
		DefaultLocale:   cfg.DefaultLocale,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       staticDir,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight drawings may still be waiting on the backend.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SDRequestTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newUploader picks the artifact store. The local backend also returns the
// directory the router serves under /static.
func newUploader(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (storage.Uploader, string, error) {
	switch cfg.StorageBackend {
	case "s3":
		up, err := storage.NewS3Uploader(ctx, storage.S3Options{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			AccessKeyID:    cfg.S3AccessKeyID,
			SecretKey:      cfg.S3SecretKey,
			UsePathStyle:   cfg.S3UsePathStyle,
		}, logger)
		return up, "", err
	case "local":
		fs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			return nil, "", err
		}
		return fs, fs.BasePath(), nil
	default:
		return nil, "", fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}
