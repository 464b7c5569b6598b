package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type Config struct {
	Listen           string
	OutputPrefix     string
	OnBeforeShutdown func()
	OnReady          func(addr string)
}

type WebApp struct {
	config       Config
	batch        *Orchestrator
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config, batch *Orchestrator) *WebApp {
	if config.OutputPrefix == "" {
		config.OutputPrefix = defaultOutputPrefix
	}
	return &WebApp{
		config:     config,
		batch:      batch,
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.router(ctx)

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	listen := a.config.Listen
	if listen == "" {
		// Let the OS assign a random available port
		listen = "localhost:0"
	}
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (a *WebApp) router(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             512 * 1024 * 1024, // uploads are unbounded image batches
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Ctx(c.Context()).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	webapp.Get("/api/images", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"images": a.batch.Rows()})
	})

	webapp.Post("/api/images", func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "expected multipart upload")
		}

		var images []SourceImage
		for _, fh := range form.File["images"] {
			if !isImageUpload(fh.Header.Get("Content-Type"), fh.Filename) {
				log.Ctx(ctx).Debug().Str("filename", fh.Filename).Msg("skipping non-image upload")
				continue
			}
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
			}
			src, err := NewSourceImage(fh.Filename, data)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("filename", fh.Filename).Msg("rejecting upload")
				continue
			}
			images = append(images, src)
		}
		if len(images) == 0 {
			return fiber.NewError(http.StatusBadRequest, "no usable images in upload")
		}

		a.batch.Load(images)
		log.Ctx(ctx).Info().Int("count", len(images)).Msg("batch loaded")
		return c.JSON(fiber.Map{"images": a.batch.Rows()})
	})

	webapp.Get("/api/view/:id", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid image id")
		}
		src, ok := a.batch.Source(id)
		if !ok {
			return fiber.NewError(http.StatusNotFound, "unknown image")
		}
		c.Set(fiber.HeaderContentType, src.MIME())
		return c.Send(src.Data)
	})

	webapp.Get("/api/preview/:id", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid image id")
		}
		res, ok := a.batch.Result(id)
		if !ok {
			return fiber.NewError(http.StatusNotFound, "image not processed yet")
		}
		if c.QueryBool("data") {
			return c.JSON(fiber.Map{
				"data_url":   res.DataURL(),
				"width":      res.Width,
				"height":     res.Height,
				"size_bytes": res.SizeBytes,
			})
		}
		c.Set(fiber.HeaderContentType, res.MIME())
		return c.Send(res.Data)
	})

	webapp.Put("/api/images/:id/crop", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid image id")
		}
		var request struct {
			Crop   CropRect        `json:"crop"`
			Aspect AspectSelection `json:"aspect"`
		}
		if err := c.BodyParser(&request); err != nil {
			return err
		}
		if err := a.batch.CommitCrop(ctx, id, request.Crop, request.Aspect); err != nil {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Get("/api/watermark", func(c *fiber.Ctx) error {
		return c.JSON(a.batch.Watermark())
	})

	webapp.Put("/api/watermark", func(c *fiber.Ctx) error {
		var cfg WatermarkConfig
		if err := c.BodyParser(&cfg); err != nil {
			return err
		}
		// The form toggles the badge on and off; the icon file itself is
		// configured server-side, so keep it when the payload has none.
		if cfg.IconPath == "" {
			cfg.IconPath = a.batch.Watermark().IconPath
		}
		a.batch.SetWatermark(ctx, cfg)
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/process", func(c *fiber.Ctx) error {
		if err := a.batch.ProcessAll(ctx); err != nil {
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		}
		return c.JSON(fiber.Map{"images": a.batch.Rows()})
	})

	webapp.Get("/api/download/:id", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid image id")
		}
		res, name, ok := a.batch.ArtifactFor(id, a.config.OutputPrefix)
		if !ok {
			return fiber.NewError(http.StatusNotFound, "image not processed yet")
		}
		c.Set(fiber.HeaderContentType, res.MIME())
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
		return c.Send(res.Data)
	})

	webapp.Get("/api/download", func(c *fiber.Ctx) error {
		artifacts := a.batch.Artifacts(a.config.OutputPrefix)
		if len(artifacts) == 0 {
			return fiber.NewError(http.StatusNotFound, "no processed images to download")
		}
		var buf bytes.Buffer
		if err := BuildArchive(&buf, artifacts); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "application/zip")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="images.zip"`)
		return c.Send(buf.Bytes())
	})

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

func isImageUpload(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "image/") {
		return true
	}
	return hasImageExtension(filename)
}

func openBrowser(addr string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", addr)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", addr)
	default:
		cmd = exec.Command("xdg-open", addr)
	}
	return cmd.Start()
}
