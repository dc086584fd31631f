package v1

import (
	"bytes"
	_ "embed"
	"log/slog"
	"sync"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

//go:embed analytics.js
var snippetSource string

var snippetTemplate = sync.OnceValues(func() (*template.Template, error) {
	return template.New("analytics.js").Parse(snippetSource)
})

// RenderSnippet renders the tracking script for baseURL.
func RenderSnippet(baseURL string) ([]byte, error) {
	tmpl, err := snippetTemplate()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string{"BaseURL": baseURL}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetSnippetAction serves the embeddable tracking script.
func GetSnippetAction(ctx *cartridge.Context) error {
	content, err := RenderSnippet(ctx.BaseURL())
	if err != nil {
		ctx.Logger.Error("Failed to render tracking snippet", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	etag := generateETag(content)
	if ctx.Get(fiber.HeaderIfNoneMatch) == etag {
		ctx.Logger.Debug("ETag match, returning 304",
			slog.String("etag", etag),
			slog.String("path", ctx.Path()))
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set(fiber.HeaderContentType, "application/javascript")
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	ctx.Set(fiber.HeaderETag, etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}
