package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "tally/api/v1"
	"tally/internal/config"
	"tally/internal/http"
	"tally/internal/http/middleware"
)

// QueryAPIPath is where the analytics query API is mounted.
const QueryAPIPath = "/v1/api/web-analytics-api"

// BeaconSecFetchSiteValues are the Sec-Fetch-Site values accepted on the
// ingestion endpoints. A missing header is always rejected.
var BeaconSecFetchSiteValues = []string{"cross-site", "same-site", "same-origin", "none"}

// publicCORSConfig is shared by every endpoint a tracked site calls directly.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()

	// Rate limiting interferes with tests and local development.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 requests per minute per IP
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Beacons are only accepted from a browser on a tracked page.
	browserOnly := cartridgemiddleware.SecFetchSiteMiddleware(cartridgemiddleware.SecFetchSiteConfig{
		AllowedValues: BeaconSecFetchSiteValues,
		Methods:       []string{fiber.MethodPost},
	})

	ingestionConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{browserOnly, publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	snippetConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// The query API authenticates with bearer tokens and is also called from
	// scripts, so it has no browser-only check.
	queryConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CORSConfig:       publicCORSConfig,
		CustomMiddleware: []fiber.Handler{middleware.Identity(logger)},
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	srv.Post("/collect", v1.CollectHandler, ingestionConfig)
	srv.Options("/collect", noContent, ingestionConfig)
	srv.Post("/event", v1.EventHandler, ingestionConfig)
	srv.Options("/event", noContent, ingestionConfig)

	srv.Get("/analytics.js", v1.GetSnippetAction, snippetConfig)
	srv.Get("/sdk.js", v1.GetSnippetAction, snippetConfig)

	registry := http.NewQueryRegistry()
	srv.Post(QueryAPIPath, http.QueryAction(registry), queryConfig)
	srv.Options(QueryAPIPath, noContent, queryConfig)
}
