package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("imagetool"),
		kong.Description("Batch-crop, watermark and compress images."),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(); err != nil {
		return err
	}

	return nil
}

type cliArgs struct {
	Serve serveCmd `cmd:"" default:"withargs" help:"Start the interactive web editor"`
	Batch batchCmd `cmd:"" help:"Process a directory of images headlessly"`
}

func setupLogging(ctx context.Context, verbose bool) context.Context {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	return log.Logger.WithContext(ctx)
}

type serveCmd struct {
	Dir     string `arg:"" optional:"" help:"Directory of images to preload into the batch"`
	Listen  string `help:"Address to listen on (empty picks a random local port)"`
	Open    bool   `help:"Open the browser automatically when the server starts" default:"true"`
	Prefix  string `help:"Filename prefix for downloaded artifacts" default:"edited-"`
	Icon    string `help:"Path to a badge icon the watermark form can toggle on"`
	MaxDim  int    `help:"Maximum output dimension in pixels" default:"1920"`
	Quality int    `help:"JPEG output quality" default:"70"`
	Verbose bool   `help:"Enable verbose logging" default:"false"`
}

func (cmd *serveCmd) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = setupLogging(ctx, cmd.Verbose)

	pipeline := NewPipeline(CompressParams{
		MaxDimension: cmd.MaxDim,
		JPEGQuality:  cmd.Quality,
	})
	watermark := DefaultWatermarkConfig
	watermark.IconPath = cmd.Icon
	batch := NewOrchestrator(pipeline, watermark)

	if cmd.Dir != "" {
		images, err := loadImagesDir(ctx, cmd.Dir)
		if err != nil {
			return fmt.Errorf("failed to preload %s: %w", cmd.Dir, err)
		}
		batch.Load(images)
		log.Ctx(ctx).Info().Int("count", len(images)).Str("dir", cmd.Dir).Msg("preloaded images")
	}

	app := NewWebApp(Config{
		Listen:       cmd.Listen,
		OutputPrefix: cmd.Prefix,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
			batch.Wait()
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
	}, batch)

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type batchCmd struct {
	Dir         string `arg:"" help:"Directory of images to process"`
	Out         string `help:"Output directory" default:"output"`
	Prefix      string `help:"Filename prefix for outputs" default:"edited-"`
	Aspect      string `help:"Crop aspect ratio" enum:"16:9,4:3,1:1,custom,original" default:"original"`
	CustomW     int    `help:"Custom aspect width (with --aspect=custom)"`
	CustomH     int    `help:"Custom aspect height (with --aspect=custom)"`
	Text        string `help:"Watermark text"`
	Glyph       bool   `help:"Prefix the watermark text with the copyright glyph"`
	FontSize    int    `help:"Watermark font size" default:"18"`
	Color       string `help:"Watermark color (#rrggbb or #rrggbbaa)" default:"#ffffff"`
	Corner      string `help:"Watermark corner" enum:"top-left,top-right,bottom-left,bottom-right" default:"bottom-right"`
	Icon        string `help:"Path to a badge icon drawn next to the text"`
	Zip         string `help:"Also bundle all outputs into a ZIP at this path"`
	MaxDim      int    `help:"Maximum output dimension in pixels" default:"1920"`
	Quality     int    `help:"JPEG output quality" default:"70"`
	Concurrency int    `help:"Parallel workers (0 = number of CPUs)"`
	Verbose     bool   `help:"Enable verbose logging" default:"false"`
}

func (cmd *batchCmd) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = setupLogging(ctx, cmd.Verbose)

	images, err := loadImagesDir(ctx, cmd.Dir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", cmd.Dir, err)
	}
	if len(images) == 0 {
		return fmt.Errorf("no images found in %s", cmd.Dir)
	}

	aspect := AspectSelection{
		Tag:     AspectTag(cmd.Aspect),
		CustomW: cmd.CustomW,
		CustomH: cmd.CustomH,
	}
	watermark := WatermarkConfig{
		Text:           cmd.Text,
		CopyrightGlyph: cmd.Glyph,
		FontSize:       cmd.FontSize,
		Color:          cmd.Color,
		Corner:         Corner(cmd.Corner),
		Icon:           cmd.Icon != "",
		IconPath:       cmd.Icon,
	}
	pipeline := NewPipeline(CompressParams{
		MaxDimension: cmd.MaxDim,
		JPEGQuality:  cmd.Quality,
	})

	concurrency := cmd.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	results := make([]*ProcessedResult, len(images))
	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(concurrency)
	for i, src := range images {
		pooler.Go(func(ctx context.Context) error {
			log.Ctx(ctx).Info().Str("filename", src.Name).Msg("processing")
			rect := aspect.FitRect(src.Width, src.Height)
			res, err := pipeline.Process(ctx, src, rect, watermark)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Str("filename", src.Name).Msg("failed to process image")
				return err
			}
			results[i] = &res
			return nil
		})
	}
	poolErr := pooler.Wait()

	if err := os.MkdirAll(cmd.Out, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cmd.Out, err)
	}

	var artifacts []Artifact
	for i, res := range results {
		if res == nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name: outputName(cmd.Prefix, images[i].Name, res.Format),
			Data: res.Data,
		})
	}
	for _, a := range artifacts {
		path := filepath.Join(cmd.Out, a.Name)
		if err := os.WriteFile(path, a.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Ctx(ctx).Info().Str("filename", path).Msg("wrote artifact")
	}

	if cmd.Zip != "" && len(artifacts) > 0 {
		zf, err := os.Create(cmd.Zip)
		if err != nil {
			return fmt.Errorf("failed to create archive %s: %w", cmd.Zip, err)
		}
		defer zf.Close()
		if err := BuildArchive(zf, artifacts); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("filename", cmd.Zip).Int("count", len(artifacts)).Msg("wrote archive")
	}

	if poolErr != nil {
		return fmt.Errorf("finished with errors: %w", poolErr)
	}
	return nil
}
