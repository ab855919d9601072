package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vonguard/quay/config"
	"github.com/vonguard/quay/internal/api"
	v2 "github.com/vonguard/quay/internal/api/v2"
	"github.com/vonguard/quay/internal/auth"
	"github.com/vonguard/quay/internal/dockerver"
	"github.com/vonguard/quay/internal/mirror"
	"github.com/vonguard/quay/internal/pagination"
	"github.com/vonguard/quay/internal/permissions"
	"github.com/vonguard/quay/internal/storage"
)

var (
	version   = "0.3.0"
	buildTime = "unknown"
)

func main() {
	// Parse flags
	configFile := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version")
	storagePath := flag.String("storage", "", "Storage path (overrides config)")
	listenAddr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quayd %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Load configuration
	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Override with flags
	if *storagePath != "" {
		cfg.Storage.Path = *storagePath
	}
	if *listenAddr != "" {
		cfg.Server.Addr = *listenAddr
	}

	// Initialize the registry store
	log.Printf("Initializing registry store at %s", cfg.Storage.Path)

	registry, err := storage.NewRegistry(storage.Options{
		Path:      cfg.Storage.Path,
		CacheSize: cfg.Storage.CacheSize,
		ReadOnly:  cfg.Storage.ReadOnly,
		TagQuota:  cfg.Storage.TagQuota,
	})
	if err != nil {
		log.Fatalf("Failed to initialize registry store: %v", err)
	}
	defer registry.Close()

	if cfg.Storage.ReadOnly {
		log.Printf("Registry is in read-only maintenance mode")
	}

	// Initialize authentication
	directory := auth.NewDirectory(cfg)

	var authenticator auth.Authenticator
	switch cfg.Auth.Type {
	case "htpasswd":
		authenticator, err = auth.NewHtpasswdAuth(cfg.Auth.HtpasswdFile, directory)
		if err != nil {
			log.Fatalf("Failed to initialize auth: %v", err)
		}
		log.Printf("Authentication: htpasswd (%s)", cfg.Auth.HtpasswdFile)
	default:
		authenticator = &auth.NoAuth{}
		log.Printf("Authentication: disabled")
	}

	challenge := auth.Challenger{Realm: cfg.Auth.Realm, Service: cfg.Auth.Service}

	// Pagination: tokens survive restarts only with a configured key
	tokenKey := cfg.Pagination.TokenKey
	if tokenKey == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("Failed to generate pagination token key: %v", err)
		}
		tokenKey = hex.EncodeToString(buf)
		log.Printf("Warning: no pagination token key configured, cursors will not survive restarts")
	}

	codec := pagination.NewTokenCodec(tokenKey)
	offset := pagination.NewOffsetPaginator(cfg.Pagination.MaxPageSize, codec)
	names := pagination.NewNamePaginator(cfg.Pagination.MaxPageSize)

	// Permission resolver
	resolver := permissions.NewResolver(cfg.Features, registry)

	// Client version blacklist
	blacklist, err := dockerver.NewBlacklist(cfg.Server.BlacklistedVersions)
	if err != nil {
		log.Fatalf("Failed to parse blacklisted_versions: %v", err)
	}

	// v2 API handler
	v2Handler := v2.NewHandler(cfg.Features, registry, resolver, offset, names, challenge, blacklist)

	// Initialize mirror proxy
	if len(cfg.Mirrors) > 0 {
		proxy := mirror.NewProxy(cfg.Mirrors, registry)
		v2Handler.SetProxy(proxy)
		log.Printf("Mirror proxy enabled for %d upstreams", len(cfg.Mirrors))
	}

	// Create router
	router := api.NewRouter(v2Handler, authenticator, challenge)

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Configure TLS if certificates are provided
	useTLS := cfg.Server.TLS.Cert != "" && cfg.Server.TLS.Key != ""
	if useTLS {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	// Handle graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Start server
	go func() {
		log.Printf("quayd %s starting on %s", version, cfg.Server.Addr)

		var err error
		if useTLS {
			log.Printf("TLS enabled")
			err = server.ListenAndServeTLS(cfg.Server.TLS.Cert, cfg.Server.TLS.Key)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	log.Printf("Shutting down...")

	// Give connections 30 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	log.Printf("Shutdown complete")
}
