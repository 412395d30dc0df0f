package cli

import (
	"fmt"

	"github.com/beego/beego/v2/server/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aihub/docqa/app/bootstrap"
	"github.com/aihub/docqa/app/router"
	"github.com/aihub/docqa/internal/logger"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API:
  POST /api/qa          upload a document and ask a question
  GET  /api/qa/formats  list supported media types
  GET  /health          liveness
  GET  /metrics         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config, 8001)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := newApp()
	if err != nil {
		return fmt.Errorf("failed to bootstrap application: %w", err)
	}
	defer app.Shutdown()
	bootstrap.SetGlobalApp(app)

	router.Init()

	port := 8001
	if cfg := app.Config(); cfg != nil && cfg.Server.Port > 0 {
		port = cfg.Server.Port
	}
	if servePort > 0 {
		port = servePort
	}

	web.BConfig.AppName = "docqa"
	web.BConfig.Listen.HTTPPort = port
	web.BConfig.MaxMemory = 64 << 20

	logger.Info("starting docqa API", zap.Int("port", port), zap.String("version", version))
	web.Run()
	return nil
}
