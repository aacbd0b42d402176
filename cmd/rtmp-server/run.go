package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liveriver/fabric/internal/config"
	"github.com/liveriver/fabric/internal/egress"
	"github.com/liveriver/fabric/internal/hls"
	"github.com/liveriver/fabric/internal/logger"
	srv "github.com/liveriver/fabric/internal/rtmp/server"
)

// runServer is the root command's RunE: it resolves config, brings up the
// RTMP server and (if enabled) the HLS segmenter, its HTTP surface and the
// HTTP-FLV egress, then blocks until a shutdown signal arrives.
func runServer(cmd *cobra.Command, args []string) error {
	if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger.Init()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.LogLevel)
	}
	log := logger.Slog().With("component", "cli")

	server := srv.New(srv.Config{
		ListenAddr:             cfg.ListenAddr,
		ChunkSize:              cfg.ChunkSize,
		WindowAckSize:          2_500_000, // matches control burst constant
		RecordAll:              cfg.FLVEnable,
		RecordDir:              cfg.FLVDataPath,
		LogLevel:               cfg.LogLevel,
		RelayDestinations:      cfg.RelayDestinations,
		HookScripts:            cfg.HookScripts,
		HookWebhooks:           cfg.HookWebhooks,
		HookStdioFormat:        cfg.HookStdioFormat,
		HookTimeout:            cfg.HookTimeout,
		HookConcurrency:        cfg.HookConcurrency,
		AuthEnable:             cfg.AuthEnable,
		CredentialStoreURL:     cfg.CredentialStoreURL,
		CredentialStoreTimeout: 5 * time.Second,
		FullGOP:                cfg.FullGOP,
	})

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info("server started", "addr", server.Addr().String(), "version", version)

	var hlsSrv *egress.Server
	var playlist *hls.PlaylistService
	if cfg.HLSEnable {
		playlist = hls.NewPlaylistService(cfg.HLSDataPath, 0, 0, 0)
		playlist.StartSweeper(time.Minute)

		hlsSvc := hls.NewService(server.Manager(), playlist, cfg.HLSDataPath, cfg.HLSTSDuration)
		hlsSvc.Start()

		hlsSrv = egress.NewServer(cfg.HLSAddr, playlist)
		if err := hlsSrv.Start(); err != nil {
			return fmt.Errorf("failed to start hls http server: %w", err)
		}
		log.Info("hls http server started", "addr", cfg.HLSAddr)
	}

	var flvSrv *egress.FLVServer
	if cfg.HTTPFLVEnable {
		flvSrv = egress.NewFLVServer(cfg.HTTPFLVAddr, server.Manager())
		if err := flvSrv.Start(); err != nil {
			return fmt.Errorf("failed to start http-flv server: %w", err)
		}
		log.Info("http-flv server started", "addr", cfg.HTTPFLVAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if flvSrv != nil {
			if err := flvSrv.Stop(shutdownCtx); err != nil {
				log.Error("http-flv server stop error", "error", err)
			}
		}
		if hlsSrv != nil {
			if err := hlsSrv.Stop(shutdownCtx); err != nil {
				log.Error("hls http server stop error", "error", err)
			}
			playlist.Stop()
		}
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
	return nil
}
