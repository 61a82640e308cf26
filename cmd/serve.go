package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/redink/outliner/internal/outline"
	"github.com/redink/outliner/internal/server"
)

var addrFlag string

// Tests override this to avoid binding a port.
var listenAndServe = func(cmd *cobra.Command, srv *server.Server, addr string) error {
	return srv.ListenAndServe(cmd.Context(), addr)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve outline generation over HTTP",
	Long: `Serve outline generation over HTTP.

Routes:
  POST /api/outline  {"topic": "...", "images": ["data:image/png;base64,...", "https://..."]}
  GET  /health
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from config, else :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, "info")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := newOutliner(cfg, log, outline.WithMetrics(outline.NewMetrics(reg)))
	if err != nil {
		return err
	}

	addr := addrFlag
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = ":8080"
	}
	return listenAndServe(cmd, server.New(svc, log, reg), addr)
}
