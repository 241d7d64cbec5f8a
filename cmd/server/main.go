package main

import (
	"flag"
	"os"
	"strings"

	"github.com/echosig/echosig/pkg/config"
	"github.com/echosig/echosig/pkg/echosig/engine"
	"github.com/echosig/echosig/pkg/logger"
)

func main() {
	var (
		port       int
		configPath string
		origins    string
	)
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&configPath, "config", os.Getenv("ECHOSIG_CONFIG"), "path to a yaml config file")
	flag.StringVar(&origins, "origins", "*", "comma-separated list of allowed CORS origins")
	flag.Parse()

	log := logger.GetLogger()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("loading config %s: %v", configPath, err)
		}
		cfg = loaded
	}

	e, err := engine.Open(cfg)
	if err != nil {
		log.Fatalf("opening index: %v", err)
	}
	defer e.Close()

	var allowedOrigins []string
	if origins == "*" {
		allowedOrigins = []string{"*"}
	} else {
		for _, o := range strings.Split(origins, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}

	databaseTypeLabel := cfg.Database.DatabaseType
	if databaseTypeLabel == "" {
		databaseTypeLabel = "sqlite"
	}

	serverConfig := &ServerConfig{
		Port:              port,
		TempDir:           cfg.TempDir,
		SampleRate:        cfg.SampleRate,
		WorkerCount:       config.WorkerCount(cfg.WorkerCount),
		AllowedOrigins:    allowedOrigins,
		databaseTypeLabel: databaseTypeLabel,
	}

	server := NewServer(e, serverConfig)
	if err := server.Start(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
