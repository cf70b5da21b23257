package setup

import (
	"appcommerce/app"
	"appcommerce/authapi"
	"appcommerce/blobstore"
	"appcommerce/cache"
	"appcommerce/config"
	"appcommerce/database"
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"appcommerce/prefetch"
	"appcommerce/services"
	"appcommerce/session"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const datastoreScope = "https://www.googleapis.com/auth/datastore"

// Dependencies holds everything that needs closing on shutdown
type Dependencies struct {
	DB        *database.DB
	Firestore *docstore.Firestore
	Blobs     *blobstore.GCS
	Redis     *cache.Redis
	Prefetch  *prefetch.Worker
	cancel    context.CancelFunc
}

// InitDatabase initializes the SQLite database and runs migrations
func InitDatabase(dbPath string, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database initialized", "path", dbPath)
	return db, nil
}

// clientOptions loads service account credentials when a key file is
// configured. Without one the clients fall back to application default
// credentials.
func clientOptions(ctx context.Context, cfg *config.Config) ([]option.ClientOption, error) {
	if cfg.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, datastoreScope, storage.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// documentCache picks the cache backend. Redis expires entries itself; the
// SQLite cache returns a cleanup for the prefetch worker.
func documentCache(ctx context.Context, cfg *config.Config, db *database.DB, deps *Dependencies, logger *slog.Logger) (docstore.Cache, []prefetch.Cleanup, error) {
	if cfg.CacheBackend == config.CacheRedis {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.DocumentTTL)
		if err != nil {
			return nil, nil, err
		}
		deps.Redis = rdb
		logger.Info("document cache backed by redis", "addr", cfg.RedisAddr)
		return rdb, nil, nil
	}

	docs := database.NewDocumentCache(db, cfg.DocumentTTL)
	evict := prefetch.Cleanup{
		Name: "document_cache",
		Run: func(ctx context.Context) (int64, error) {
			return docs.Evict(ctx, time.Now().Add(-cfg.DocumentTTL))
		},
	}
	logger.Info("document cache backed by sqlite")
	return docs, []prefetch.Cleanup{evict}, nil
}

// InitApp initializes the application with all dependencies
func InitApp(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (*app.App, *Dependencies, error) {
	deps := &Dependencies{DB: db}
	fail := func(err error) (*app.App, *Dependencies, error) {
		Shutdown(deps, logger)
		return nil, nil, err
	}

	opts, err := clientOptions(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	remote, err := docstore.NewFirestore(ctx, cfg.GCPProjectID, logger, opts...)
	if err != nil {
		return fail(err)
	}
	deps.Firestore = remote
	logger.Info("firestore client initialized", "project", cfg.GCPProjectID)

	docCache, cleanups, err := documentCache(ctx, cfg, db, deps, logger)
	if err != nil {
		return fail(err)
	}
	store := docstore.NewCached(remote, docCache, logger)

	blobs, err := blobstore.NewGCS(ctx, cfg.StorageBucket, cfg.SignedURLTTL, logger, opts...)
	if err != nil {
		return fail(err)
	}
	deps.Blobs = blobs
	logger.Info("blob store initialized", "bucket", cfg.StorageBucket)

	images, err := imagecache.NewLoader(cfg.ImageCacheDir, cfg.ImageCacheMaxAge, &http.Client{Timeout: 30 * time.Second}, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, prefetch.Cleanup{
		Name: "image_cache",
		Run: func(context.Context) (int64, error) {
			n, err := images.Purge()
			return int64(n), err
		},
	})

	auth := authapi.NewClient(cfg.IdentityBaseURL, cfg.IdentityAPIKey)
	prefs := database.NewPreferences(db)

	catalog := services.NewCatalogService(store, blobs, images, logger)
	accounts := services.NewAccountService(store, auth, blobs, images, prefs, logger)

	// Initialize in-memory session store
	sessionStore := session.NewStore()
	bg, cancel := context.WithCancel(context.Background())
	deps.cancel = cancel
	sessionStore.StartCleanupRoutine(bg, 10*time.Minute)
	logger.Info("session cleanup routine started")

	// Start prefetch worker to keep categories readable from cache
	deps.Prefetch = prefetch.NewWorker(store, []string{services.CollectionCategories}, cfg.PrefetchInterval, logger)
	for _, c := range cleanups {
		deps.Prefetch.AddCleanup(c)
	}
	deps.Prefetch.Start()

	// Create App with all dependencies injected
	application := app.New(catalog, accounts, sessionStore, logger)
	logger.Info("application initialized with dependency injection")

	return application, deps, nil
}

// Shutdown performs graceful shutdown of all services
func Shutdown(deps *Dependencies, logger *slog.Logger) {
	if deps == nil {
		return
	}
	logger.Info("shutting down services...")

	if deps.Prefetch != nil {
		deps.Prefetch.Stop()
	}
	if deps.cancel != nil {
		deps.cancel()
	}
	if deps.Blobs != nil {
		if err := deps.Blobs.Close(); err != nil {
			logger.Warn("closing blob store", "error", err)
		}
	}
	if deps.Firestore != nil {
		if err := deps.Firestore.Close(); err != nil {
			logger.Warn("closing firestore", "error", err)
		}
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("closing redis", "error", err)
		}
	}

	// Close database
	if deps.DB != nil {
		deps.DB.Close()
		logger.Info("database closed")
	}
}
