package main

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jzx17/goretry/internal/remote"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the unstable endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gin.SetMode(gin.ReleaseMode)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())

		return remote.NewServer(appConfig.Server.Addr, logger, remote.WithMetrics(reg)).Run(ctx)
	},
}
