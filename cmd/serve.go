package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/filtering"
	"github.com/spigell/skillmatch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is server.addr from config)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the skillmatch server", zap.String("version", version))

	engine, release, err := buildEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matching engine", zap.Error(err))
	}
	defer release()

	filters := filtering.Config{ExcludeFile: config.ExcludeFile, Limit: config.Limit}
	srv := server.New(engine, filters, logger)

	if err := srv.ListenAndServe(ctx, config.Server.Addr); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
