package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dgraph-io/badger/v4"
	"github.com/sekai02/pagewrite/internal/api"
	"github.com/sekai02/pagewrite/internal/config"
	"github.com/sekai02/pagewrite/internal/device"
	"github.com/sekai02/pagewrite/internal/ids"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/persistence"
	"github.com/sekai02/pagewrite/internal/session"
	"github.com/sekai02/pagewrite/internal/storage"
	"github.com/sekai02/pagewrite/internal/sys"
)

var service *api.Service

func main() {
	var cfg config.Server
	kong.Parse(&cfg,
		kong.Name("nvm-server"),
		kong.Description("HTTP server for emulated page-programmed NVM devices."),
	)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	idGen := ids.NewGenerator()

	store, err := storage.OpenBadger(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to open BadgerDB:", err)
	}
	defer store.Close()

	factory := func(id ids.DeviceID, geo sys.Geometry) (nvm.Backend, error) {
		backend, err := store.Backend(uint64(id), geo)
		if err != nil {
			return nil, err
		}
		backend.SetBusyPolls(cfg.BusyPolls)
		return backend, nil
	}
	deviceMgr := device.NewManager(idGen, factory, logger)
	sessionMgr := session.NewManager(idGen, deviceMgr)

	data, err := store.LoadMetadata("system")
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			slog.Info("No existing metadata found, starting fresh")
		} else {
			slog.Warn("Failed to load metadata", "error", err)
		}
		if _, err := deviceMgr.RegisterDevice("default", cfg.Geometry()); err != nil {
			log.Fatal("Failed to register default device:", err)
		}
	} else {
		slog.Info("Loading existing metadata from storage")
		err = persistence.LoadMetadata(data, idGen, deviceMgr)
		if err != nil {
			log.Fatal("Failed to restore metadata:", err)
		}
		slog.Info("Metadata restored successfully", "devices", len(deviceMgr.List()))
	}

	service = api.NewService(deviceMgr, sessionMgr, idGen, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/devices", handleDevices)
	mux.HandleFunc("/v1/devices/", handleDeviceOps)
	mux.HandleFunc("/v1/streams", handleStreams)
	mux.HandleFunc("/v1/streams/", handleStreamOps)
	mux.HandleFunc("/v1/import", handleImport)
	mux.HandleFunc("/v1/export/", handleExport)

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting server", "addr", cfg.Addr, "data_dir", cfg.DataDir)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
