package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Hain2000/docindex"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	manager *docindex.Manager
	logger  hclog.Logger
)

type indexInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Algorithm string `json:"algorithm"`
	Keys      int64  `json:"keys"`
	Values    int64  `json:"values"`
	Unusable  bool   `json:"unusable"`
}

func handleIndexes(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var infos []indexInfo
	for _, name := range manager.Indexes() {
		ix, err := manager.Index(name)
		if err != nil {
			continue
		}
		info := indexInfo{Name: name, Type: string(ix.Type()), Algorithm: ix.Engine().Algorithm(), Unusable: ix.Unusable()}
		if !info.Unusable {
			info.Keys, _ = ix.KeySize(request.Context())
			info.Values, _ = ix.Size(request.Context())
		}
		infos = append(infos, info)
	}
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode(infos)
}

func handleRebuild(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := request.URL.Query().Get("name")
	n, err := manager.RebuildIndex(request.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, docindex.ErrIndexNotFound) {
			status = http.StatusNotFound
		}
		http.Error(writer, err.Error(), status)
		logger.Error("rebuild failed", "index", name, "error", err)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode(map[string]int64{"indexed": n})
}

func handleBackup(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dir := request.URL.Query().Get("dir")
	if dir == "" {
		http.Error(writer, "dir is required", http.StatusBadRequest)
		return
	}
	if err := manager.Backup(request.Context(), dir); err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		logger.Error("backup failed", "dir", dir, "error", err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func main() {
	var (
		config   = flag.String("config", "", "yaml options file")
		dirPath  = flag.String("dir", "", "index data directory, overrides the config file")
		httpAddr = flag.String("http-addr", ":9190", "admin and metrics address")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger = hclog.New(&hclog.LoggerOptions{
		Name:  "docindex",
		Level: hclog.LevelFromString(*logLevel),
	})

	options := docindex.DefaultOptions
	if *config != "" {
		var err error
		if options, err = docindex.LoadOptions(*config); err != nil {
			logger.Error("cannot load options", "file", *config, "error", err)
			os.Exit(1)
		}
	}
	if *dirPath != "" {
		options.DirPath = *dirPath
	}
	options.Logger = logger
	options.Registerer = prometheus.DefaultRegisterer

	var err error
	manager, err = docindex.Open(options)
	if err != nil {
		logger.Error("cannot open index manager", "dir", options.DirPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Error("close index manager", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/indexes", handleIndexes)
	mux.HandleFunc("/rebuild", handleRebuild)
	mux.HandleFunc("/backup", handleBackup)
	server := &http.Server{Addr: *httpAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("admin server started", "addr", *httpAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = server.Shutdown(shutdownCtx)
	wg.Wait()
}
