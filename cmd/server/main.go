package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mettafore/evals-workshop/internal/config"
	"github.com/mettafore/evals-workshop/internal/handler"
	"github.com/mettafore/evals-workshop/internal/repository"
	"github.com/mettafore/evals-workshop/internal/service"
	"github.com/mettafore/evals-workshop/internal/suggest"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config file")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting annotation workbench server...")

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		*configPath = ""
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Suggestion chain: configured LLM providers with the heuristic as the
	// always-present fallback.
	chain := suggest.NewChain(suggest.ChainConfig{
		Providers:   cfg.Providers,
		MaxFailures: cfg.MaxFailuresBeforeSwitch,
	}, logger)
	defer chain.Close()

	os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755)

	store, err := repository.NewStore(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer store.Close()

	workbench := service.NewWorkbench(store, chain, logger)
	apiHandler := handler.NewHandler(workbench, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	apiHandler.RegisterRoutes(router)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Annotation workbench is running",
		zap.String("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
