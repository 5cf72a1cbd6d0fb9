package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/fairlead/disclosure-backend/internal/db"
	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/schema"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Schema   *schema.Schema
	Repos    Repos
	Services Services
	redis    *goredis.Client
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	// Schema misconfiguration (duplicate ids, derivation cycles) must
	// prevent startup, never surface per-request.
	formSchema, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load form schema: %w", err)
	}
	log.Info("Form schema loaded", "form", formSchema.Name, "fields", len(formSchema.Fields), "derived", len(formSchema.DeriveOrder))

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Sync()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cancel()
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, formSchema, reposet)
	handlerset := wireHandlers(log, serviceset)
	mw := wireMiddleware(log, cfg, serviceset, rdb)
	router := wireRouter(cfg, handlerset, mw)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Schema:   formSchema,
		Repos:    reposet,
		Services: serviceset,
		redis:    rdb,
	}, nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
