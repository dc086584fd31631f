package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
)

const (
	statusOK       = "ok"
	statusError    = "error"
	statusDegraded = "degraded"
)

// HealthStatus is the body of GET /_health.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// HealthIndexAction reports liveness and pings the database. A failed ping
// degrades the status but still answers 200 so load balancers keep routing
// ingestion, which only needs the write path.
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    statusOK,
		Timestamp: time.Now().UTC(),
		DBStatus:  pingDatabase(ctx),
	}
	if health.DBStatus != statusOK {
		health.Status = statusDegraded
	}
	return ctx.JSON(health)
}

func pingDatabase(ctx *cartridge.Context) string {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		ctx.Logger.Error("Database connection unavailable")
		return statusError
	}

	sqlDB, err := db.DB()
	if err != nil {
		ctx.Logger.Error("Database connection error", slog.Any("error", err))
		return statusError
	}
	if err := sqlDB.PingContext(ctx.UserContext()); err != nil {
		ctx.Logger.Error("Database ping failed", slog.Any("error", err))
		return statusError
	}
	return statusOK
}
