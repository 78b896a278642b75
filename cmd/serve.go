package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiscovery/pdiscovery/internal/api"
	"github.com/pdiscovery/pdiscovery/internal/app"
)

var flagListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagListenAddr != "" {
			cfg.ListenAddr = flagListenAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Setup(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := api.NewServer(cfg.ListenAddr, a.Answerer, a.Feedback, a.Store, logger)
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListenAddr, "listen", "", "listen address (overrides configuration)")
}
