package http

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tally/internal/http/middleware"
	"tally/internal/queryapi"
)

const (
	msgInvalidBody      = "Invalid request body"
	msgMissingOperation = "Missing operation"
)

type queryRequest struct {
	Operation string          `json:"operation"`
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables"`
}

func (r queryRequest) name() string {
	if name := strings.TrimSpace(r.Operation); name != "" {
		return name
	}
	return strings.TrimSpace(r.Query)
}

// QueryAction dispatches POST /v1/api/web-analytics-api bodies to the
// registered operation. Operation outcomes are always HTTP 200; only a
// malformed body (400) or an unknown operation (404) change the status.
func QueryAction(registry *queryapi.Registry) func(ctx *cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		var body queryRequest
		if err := json.Unmarshal(ctx.Body(), &body); err != nil {
			ctx.Logger.Debug("Rejected malformed query body", slog.Any("error", err))
			return ctx.Status(fiber.StatusBadRequest).JSON(queryapi.Fail(msgInvalidBody, nil))
		}

		name := body.name()
		if name == "" {
			return ctx.Status(fiber.StatusBadRequest).JSON(queryapi.Fail(msgMissingOperation, nil))
		}

		op, ok := registry.Lookup(name)
		if !ok {
			ctx.Logger.Debug("Unknown operation requested", slog.String("operation", name))
			return ctx.Status(fiber.StatusNotFound).JSON(queryapi.Fail("Unknown operation: "+name, nil))
		}

		req := &queryapi.Request{
			Ctx:       ctx.UserContext(),
			Operation: op.Name,
			DBManager: ctx.DBManager,
			Logger:    ctx.Logger,
			Identity:  middleware.CurrentIdentity(ctx.Ctx),
			Variables: body.Variables,
			Now:       time.Now().UTC(),
		}

		return ctx.Status(fiber.StatusOK).JSON(op.Handler(req))
	}
}

// NewQueryRegistry wires every feature area into one dispatch table.
func NewQueryRegistry() *queryapi.Registry {
	return queryapi.NewRegistry(
		AccountOperations(),
		SitesOperations(),
		AnalyticsOperations(nil),
	)
}
