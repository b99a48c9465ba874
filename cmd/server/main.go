package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pricechecker/admin/config"
	httpDelivery "github.com/pricechecker/admin/internal/delivery/http"
	"github.com/pricechecker/admin/internal/infrastructure/flowstore"
	"github.com/pricechecker/admin/internal/infrastructure/github"
	"github.com/pricechecker/admin/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Price Checker Admin v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Catalog: %s/%s @ %s", cfg.GitHub.Repo, cfg.GitHub.FilePath, cfg.GitHub.Branch)

	// Initialize infrastructure dependencies
	githubClient := github.NewClient(github.Config{
		BaseURL:  cfg.GitHub.BaseURL,
		Repo:     cfg.GitHub.Repo,
		FilePath: cfg.GitHub.FilePath,
		Branch:   cfg.GitHub.Branch,
		Token:    cfg.GitHub.Token,
		Timeout:  cfg.GitHub.Timeout,
	})

	// Enable debug mode in development environment
	if cfg.Server.Environment == "development" {
		githubClient.SetDebug(true)
		log.Printf("GitHub client debug mode enabled")
	}

	if cfg.GitHub.Token != "" {
		log.Printf("GitHub API configured with access token")
	} else {
		log.Printf("WARNING: no GitHub token configured - only public repositories will work, at low rate limits")
	}

	flows := flowstore.NewStore()
	gate := usecase.NewGate(cfg.Admin.Password)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(gate, githubClient, flows, cfg.Session.TTL)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
