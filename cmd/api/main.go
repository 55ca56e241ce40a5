package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-upi-reconciler/internal/bootstrap"
	"github.com/imrishuroy/go-upi-reconciler/internal/config"
	"github.com/imrishuroy/go-upi-reconciler/internal/handlers"
	"github.com/imrishuroy/go-upi-reconciler/internal/logging"
)

func setupRouter(cfg handlers.HandlerConfig, environment string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.RequestLogger(cfg.Logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"environment": environment,
		})
	})

	handlers.RegisterPaymentRoutes(r, cfg)

	return r
}

func main() {
	appCfg, err := config.LoadApp(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(os.Stdout, appCfg.LogLevel, appCfg.RunLocal)

	rt, err := bootstrap.New(context.Background(), appCfg, logger)
	if err != nil {
		log.Fatalf("failed to init runtime: %v", err)
	}
	defer rt.Close()

	hc := handlers.HandlerConfig{
		Engine: rt.Engine,
		Nonces: rt.Guard,
		Payee:  rt.Payee,
		Logger: logger,
	}
	if rt.Metrics != nil {
		hc.Metrics = rt.Metrics
	}
	r := setupRouter(hc, appCfg.Environment)

	// RUN_LOCAL=true serves plain HTTP for development.
	if appCfg.RunLocal {
		addr := fmt.Sprintf(":%d", appCfg.Port)
		logger.Info("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			logger.Error("local server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
