package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"scriptboard/app"
	"scriptboard/pkg/config"
)

var (
	configPath string
	serveAddr  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel == "" && os.Getenv("LOG_LEVEL") == "" {
			if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
				logrus.SetLevel(lvl)
			}
		}

		server, err := app.NewServer(cfg)
		if err != nil {
			return err
		}
		defer server.Close()

		errc := make(chan error, 1)
		go func() { errc <- server.Start(serveAddr) }()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errc:
			return err
		case sig := <-stop:
			logrus.WithField("signal", sig.String()).Info("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides SERVER_ADDR)")
}
