package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/HenshawIII/Galafy/internal/config"
	"github.com/HenshawIII/Galafy/internal/customer"
	"github.com/HenshawIII/Galafy/internal/event"
	"github.com/HenshawIII/Galafy/internal/ledger"
	"github.com/HenshawIII/Galafy/internal/live"
	"github.com/HenshawIII/Galafy/internal/middleware"
	"github.com/HenshawIII/Galafy/internal/provider"
	"github.com/HenshawIII/Galafy/internal/ratelimit"
	"github.com/HenshawIII/Galafy/internal/spray"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	var eventRepo event.Repository
	var customers customer.Directory
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.LockTimeout, d.Cfg.RecordTimeout)
		eventRepo = event.NewPostgresRepository(d.DB)
		customers = customer.NewPostgresDirectory(d.DB)
	} else {
		store = ledger.NewMemoryStore()
		eventRepo = event.NewMemoryRepository()
		customers = customer.NewMemoryDirectory()
	}

	var settlement provider.Client
	if d.Cfg.ProviderURL != "" {
		settlement = provider.NewHTTPClient(d.Cfg.ProviderURL, d.Cfg.ProviderAPIKey, nil)
	} else {
		settlement = provider.StaticClient{}
	}

	// The limiter is advisory and per-user; Redis makes it hold across
	// instances, the in-memory window covers single-process deployments.
	var limiter ratelimit.Limiter
	if d.Cache != nil {
		limiter = ratelimit.NewRedisLimiter(d.Cache, d.Cfg.SprayRateLimit, d.Cfg.SprayRateWindow)
	} else {
		limiter = ratelimit.NewSlidingWindow(d.Cfg.SprayRateLimit, d.Cfg.SprayRateWindow)
	}

	hub := live.NewHub(d.Logger)
	spraySvc := spray.NewService(limiter, store, eventRepo, customers, settlement, hub, d.Logger)
	sprayHandler := spray.NewHandler(spraySvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(d.Cfg.JWTSecret)
	protected := api.Group("", jwtmw)
	protected.Post("/events/:eventId/sprays", sprayHandler.Create)
	protected.Get("/events/:eventId/sprays/totals", sprayHandler.Totals)

	app.Use("/live", live.UpgradeGuard(d.Cfg.JWTSecret))
	app.Get("/live", live.Handler(hub, eventRepo, d.Logger))

	return nil
}
