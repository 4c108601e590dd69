// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/abistore/indexer"
	"github.com/ava-labs/abistore/store"
)

const (
	indexerPath = "/ext/" + indexer.Name
	metricsPath = "/metrics"

	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := getConfig(os.Args[1:])
	if err != nil {
		fmt.Printf("couldn't get config: %s\n", err)
		os.Exit(1)
	}
	// Print version and exit
	if cfg.Version {
		fmt.Printf("%s@%s\n", indexer.Name, indexer.Version)
		os.Exit(0)
	}

	lvl, err := log.LvlFromString(cfg.LogLevel)
	if err != nil {
		fmt.Printf("couldn't parse log level: %s\n", err)
		os.Exit(1)
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("abistore exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	engine, err := indexer.New(db, memdb.New(), indexer.Config{ProgramCacheSize: cfg.CatalogCacheSize}, registry)
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, path := range cfg.ABIs {
		document, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("couldn't read abi: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		programID, err := engine.Register(ctx, name, document)
		if err != nil {
			return fmt.Errorf("couldn't register %s: %w", path, err)
		}
		log.Info("serving program", "name", name, "programID", programID)
	}

	handler, err := indexer.NewHandler(engine)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(indexerPath, handler)
	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    net.JoinHostPort(cfg.HTTPHost, strconv.FormatUint(uint64(cfg.HTTPPort), 10)),
		Handler: mux,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", server.Addr, "version", indexer.Version)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
