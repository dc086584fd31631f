package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tally/internal/apperr"
	"tally/internal/events"
)

const (
	errInvalidRequest  = "Invalid request"
	errCollectFailed   = "Failed to collect visit data"
	errRecordFailed    = "Failed to record event"
	errDatabaseBusy    = "database is locked"
	statusDatabaseBusy = 599
)

// CollectParams is the pageview beacon body.
type CollectParams struct {
	SitePublicKey string `json:"site_public_key"`
	VisitorID     string `json:"visitor_id"`
	SessionID     string `json:"session_id"`
	URL           string `json:"url"`
	Referrer      string `json:"referrer"`
	UserAgent     string `json:"user_agent"`
	DeviceType    string `json:"device_type"`
}

// EventParams is the custom event beacon body.
type EventParams struct {
	SitePublicKey string `json:"site_public_key"`
	SessionID     string `json:"session_id"`
	Name          string `json:"name"`
	EventData     any    `json:"event_data"`
}

// CollectHandler handles POST /collect.
func CollectHandler(ctx *cartridge.Context) error {
	var params CollectParams
	if err := ctx.BodyParser(&params); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	userAgent := strings.TrimSpace(params.UserAgent)
	if userAgent == "" {
		userAgent = requestUserAgent(ctx.Ctx)
	}

	input := &events.CollectVisitInput{
		SitePublicKey: params.SitePublicKey,
		VisitorID:     params.VisitorID,
		SessionID:     params.SessionID,
		URL:           params.URL,
		Referrer:      params.Referrer,
		UserAgent:     userAgent,
		DeviceType:    params.DeviceType,
		IPAddress:     getClientIP(ctx.Ctx),
	}

	if _, err := events.CollectVisit(ctx.DBManager, ctx.Logger, input); err != nil {
		return ingestionError(ctx, err, errCollectFailed)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

// EventHandler handles POST /event.
func EventHandler(ctx *cartridge.Context) error {
	var params EventParams
	if err := ctx.BodyParser(&params); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	input := &events.RecordEventInput{
		SitePublicKey: params.SitePublicKey,
		SessionID:     params.SessionID,
		Name:          params.Name,
		EventData:     params.EventData,
		IPAddress:     getClientIP(ctx.Ctx),
	}

	if _, err := events.RecordEvent(ctx.DBManager, ctx.Logger, input); err != nil {
		return ingestionError(ctx, err, errRecordFailed)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

// ingestionError maps validation failures to 400 with their own message and
// everything else to a logged 500 with fallback.
func ingestionError(ctx *cartridge.Context, err error, fallback string) error {
	if apperr.KindOf(err) == apperr.KindValidation {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, apperr.MessageOf(err, errInvalidRequest)))
	}

	ctx.Logger.Error(fallback, slog.String("path", ctx.Path()), slog.Any("error", err))
	if strings.Contains(err.Error(), errDatabaseBusy) {
		return ctx.Status(statusDatabaseBusy).JSON(fiber.Map{"error": fallback})
	}
	return handleError(ctx.Ctx, fiber.NewError(http.StatusInternalServerError, fallback))
}

func handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func requestUserAgent(c *fiber.Ctx) string {
	if forwarded := strings.TrimSpace(c.Get("X-Forwarded-User-Agent")); forwarded != "" {
		return forwarded
	}
	return c.Get(fiber.HeaderUserAgent)
}
