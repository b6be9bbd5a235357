package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-overlay/internal/config"
	"github.com/joeblew999/plat-overlay/internal/logger"
	"github.com/joeblew999/plat-overlay/internal/server"
)

// Options defines all CLI flags and env vars for the overlay server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir  string `doc:"Directory for shapes, data layers and presets" default:".data"`
	WebDir   string `doc:"Path to web/ directory" default:"web"`
	Config   string `doc:"Path to the YAML domain config" short:"c" default:"overlay.yaml"`
	LogLevel string `doc:"Log level (debug, info, warn, error)" default:"info"`
}

func loadConfig(opts *Options) *config.Config {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config %s: %v\n", opts.Config, err)
		os.Exit(1)
	}
	return cfg
}

func newServer(opts *Options, log *zap.Logger) *server.Server {
	return server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		WebDir:     opts.WebDir,
		Domain:     loadConfig(opts),
		Extensions: []string{"spatial"},
		Logger:     log,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log, err := logger.New(opts.LogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
			os.Exit(1)
		}
		zap.ReplaceGlobals(log)

		srv := newServer(opts, log)

		hooks.OnStart(func() {
			defer log.Sync()
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-overlay API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Config:  %s\n", opts.Config)
			fmt.Println()
			fmt.Printf("  Page:    %s/map\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatal("Server error", zap.Error(err))
			}
		})
	})

	cli.Root().Use = "overlay"
	cli.Root().Short = "Map overlays, basemap switching and choropleth presets"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts, zap.NewNop())
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// styles subcommand: list the basemap catalog, or write the effective config
	stylesCmd := &cobra.Command{
		Use:   "styles",
		Short: "List the configured basemap styles (--write to save the effective config)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg := loadConfig(opts)

			if out, _ := cmd.Flags().GetString("write"); out != "" {
				if err := cfg.Save(out); err != nil {
					fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
					os.Exit(1)
				}
				fmt.Printf("Config written to %s\n", out)
				return
			}

			for i, b := range cfg.Styles {
				def := ""
				if i == 0 {
					def = " (default)"
				}
				fmt.Printf("  %-10s %-16s %s%s\n", b.Code, b.Title, b.URL, def)
			}
		}),
	}
	stylesCmd.Flags().StringP("write", "w", "", "Write the effective config as YAML to this path")
	cli.Root().AddCommand(stylesCmd)

	cli.Run()
}
