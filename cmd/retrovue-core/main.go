// Command retrovue-core runs the RetroVue playout daemon: it wires the
// Execution Window Store, Horizon Manager, Evidence stream, and Retention
// Purger into one process and serves the AIR-facing gRPC surface plus a
// small operator HTTP status surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/retrovue/core/internal/airctl"
	"github.com/retrovue/core/internal/config"
	"github.com/retrovue/core/internal/core"
	"github.com/retrovue/core/internal/evidence"
	xglog "github.com/retrovue/core/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("retrovue-core %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "retrovue-core",
		Version: version,
	})
	logger := xglog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(strings.TrimSpace(*configPath)).Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	container, err := core.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build container")
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing container")
		}
	}()

	container.GRPCServer.RegisterService(&evidence.ServiceDesc, container.Evidence)

	evidenceAddr := cfg.EvidenceAddr
	if evidenceAddr == "" {
		evidenceAddr = ":9444"
	}
	lis, err := net.Listen("tcp", evidenceAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", evidenceAddr).Msg("failed to bind evidence gRPC listener")
	}

	go func() {
		logger.Info().Str("addr", evidenceAddr).Msg("evidence gRPC server listening")
		if err := container.GRPCServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("evidence gRPC server stopped")
		}
	}()

	if cfg.AirctlAddr != "" {
		conn, err := grpc.NewClient(cfg.AirctlAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			logger.Error().Err(err).Str("addr", cfg.AirctlAddr).Msg("failed to dial AIR control address; continuing without an airctl client")
		} else if client, err := airctl.Dial(ctx, conn); err != nil {
			logger.Error().Err(err).Str("addr", cfg.AirctlAddr).Msg("failed to open AIR control stream")
		} else {
			container.Airctl = client
		}
	}

	statusAddr := cfg.StatusAddr
	if statusAddr == "" {
		statusAddr = ":9090"
	}
	statusServer := &http.Server{Addr: statusAddr, Handler: container.StatusRouter()}
	go func() {
		logger.Info().Str("addr", statusAddr).Msg("status server listening")
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("status server stopped")
		}
	}()

	logger.Info().Strs("channels", cfg.Channels).Msg("starting control loops")
	runErr := container.Run(ctx)

	container.GRPCServer.GracefulStop()
	_ = statusServer.Shutdown(context.Background())

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error().Err(runErr).Msg("container run exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("retrovue-core shut down cleanly")
}
