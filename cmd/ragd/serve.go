package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragd/internal/httpapi"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()

			if !a.cfg.Server.Debug {
				gin.SetMode(gin.ReleaseMode)
			}
			shutdown := time.Duration(a.cfg.Server.ShutdownTimeoutSecs) * time.Second
			h := httpapi.NewHandler(a.svc, a.uploads, a.cfg.Storage.MaxFileSize, a.cfg.Query.DefaultTopK, a.log)
			srv := httpapi.NewServer(a.cfg.Server.Addr(), httpapi.NewRouter(h, a.log), shutdown, a.log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = srv.Run(ctx)
			a.close(shutdown)
			if err != nil {
				a.log.Error("server stopped", zap.Error(err))
			}
			return err
		},
	}
}
