package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	objectscanner "github.com/menta2k/object-scanner"
	"github.com/menta2k/object-scanner/internal/config"
	"github.com/menta2k/object-scanner/internal/logger"
	"github.com/menta2k/object-scanner/internal/utils"
	"github.com/menta2k/object-scanner/pkg/description"
)

func main() {
	app := &cli.App{
		Name:    "object-scanner",
		Usage:   "detect and describe lost objects in camera frames",
		Version: objectscanner.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{"SCANNER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			scanCommand(),
			describeCommand(),
			modelsCommand(),
			configCommand(),
		},
		After: func(*cli.Context) error {
			logger.Sync()
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads .env, the config file and the environment, then installs the logger
func setup(c *cli.Context) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := config.Default()
	path := c.String("config")
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(nil)
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		return nil, err
	}
	if path != "" {
		logger.Log().Info("config loaded", zap.String("path", path))
	}
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address, overrides server.addr"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			if addr := c.String("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			log := logger.Log()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			scanner, err := objectscanner.New(ctx, cfg, objectscanner.WithLogger(log))
			if err != nil {
				return err
			}
			defer func() {
				if err := scanner.Close(); err != nil {
					log.Warn("close failed", zap.Error(err))
				}
			}()

			if !scanner.DescriptionEnabled() {
				log.Warn("analyze endpoint will report errors: no description provider configured")
			}
			if m := scanner.Metrics(); m != nil {
				go m.Run(ctx, cfg.Metrics.SampleInterval, scanner.QueueDepth, log)
			}

			return scanner.Server().Run(ctx)
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "run detection on an image file or a directory of images",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "input image or directory", Required: true},
			&cli.StringFlag{Name: "out", Value: "out", Usage: "output directory"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			cfg.Metrics.Enabled = false
			log := logger.Log()

			in, outDir := c.String("in"), c.String("out")
			var inputs []string
			switch {
			case utils.DirExists(in):
				if inputs, err = utils.ListImageFiles(in); err != nil {
					return err
				}
			case utils.FileExists(in):
				inputs = []string{in}
			default:
				return fmt.Errorf("input not found: %s", in)
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no images found in %s", in)
			}
			if err := utils.EnsureDir(outDir); err != nil {
				return err
			}

			scanner, err := objectscanner.New(c.Context, cfg, objectscanner.WithLogger(log))
			if err != nil {
				return err
			}
			defer scanner.Close()

			for _, path := range inputs {
				if err := scanFile(c.Context, scanner, path, outDir, cfg.Frame.OutputFormat); err != nil {
					log.Warn("scan failed", zap.String("file", path), zap.Error(err))
				}
			}
			return nil
		},
	}
}

type scanRecord struct {
	Input string `json:"input"`
	Found bool   `json:"found"`
	Label string `json:"label,omitempty"`
	Color string `json:"color,omitempty"`
	Image string `json:"image,omitempty"`
}

func scanFile(ctx context.Context, scanner *objectscanner.Scanner, path, outDir, format string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := scanner.Scan(ctx, data)
	if err != nil {
		return err
	}

	rec := scanRecord{Input: path, Found: res.Found, Label: res.Label, Color: res.Color}
	if res.Found {
		rec.Image = utils.GenerateOutputFilename(path, outDir, "", "_scan", format)
		if err := os.WriteFile(rec.Image, res.Image, 0o644); err != nil {
			return err
		}
		logger.Log().Info("wrote", zap.String("file", rec.Image))
	}

	js, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(js))
	return os.WriteFile(utils.GenerateOutputFilename(path, outDir, "", "_scan", "json"), js, 0o644)
}

// describer builds the description service without loading detectors
func describer(cfg *config.Config) (*description.Service, error) {
	vc, err := objectscanner.NewVisionClient(cfg.Description)
	if err != nil {
		return nil, err
	}
	dc := description.DefaultConfig()
	dc.Model = cfg.Description.ModelName()
	dc.Timeout = cfg.Description.Timeout
	dc.Temperature = cfg.Description.Temperature
	dc.TopP = cfg.Description.TopP
	dc.TopK = cfg.Description.TopK
	dc.MaxTokens = cfg.Description.MaxTokens
	return description.NewService(vc, dc, logger.Log()), nil
}

func describeCommand() *cli.Command {
	return &cli.Command{
		Name:  "describe",
		Usage: "describe an image with the configured vision model",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "input image", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			svc, err := describer(cfg)
			if err != nil {
				return err
			}

			in := c.String("in")
			if !utils.IsImageFile(in) {
				logger.Log().Warn("input does not have an image extension", zap.String("file", in))
			}
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}

			rec, err := svc.Describe(c.Context, data, http.DetectContentType(data))
			if err != nil {
				return err
			}
			js, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(js))
			return nil
		},
	}
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "list models offered by the description provider",
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			svc, err := describer(cfg)
			if err != nil {
				return err
			}
			models, err := svc.ListModels(c.Context)
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Println(m)
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "write the default configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "destination, defaults to the user config dir"},
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("path")
					if path == "" {
						path = config.GetConfigPath()
					}
					if utils.FileExists(path) && !c.Bool("force") {
						return fmt.Errorf("%s already exists, use --force to overwrite", filepath.Clean(path))
					}
					if err := config.Default().SaveToFile(path); err != nil {
						return err
					}
					fmt.Println("wrote", path)
					return nil
				},
			},
		},
	}
}
