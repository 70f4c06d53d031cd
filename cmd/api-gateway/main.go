package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/gloodan17/Course-Enrollment-Database/api/swagger"
	"github.com/gloodan17/Course-Enrollment-Database/internal/app"
	"github.com/gloodan17/Course-Enrollment-Database/internal/handler"
	"github.com/gloodan17/Course-Enrollment-Database/internal/middleware"
	"github.com/gloodan17/Course-Enrollment-Database/internal/service"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/config"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/database"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/logger"
	corsmiddleware "github.com/gloodan17/Course-Enrollment-Database/pkg/middleware/cors"
	reqidmiddleware "github.com/gloodan17/Course-Enrollment-Database/pkg/middleware/requestid"
)

// @title Course Enrollment API
// @version 1.0.0
// @description Departments, courses, sections and students with enrollment integrity checks
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	client, db, err := database.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		logr.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()
	st := store.NewMongoStore(db, logr)

	metrics := service.NewMetricsService()
	res, err := app.Open(ctx, cfg, st, logr, metrics)
	if err != nil {
		logr.Fatal("failed to prepare collections", zap.Error(err))
	}
	defer res.Close()

	authSvc := service.NewAuthService(nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "course-enrollment",
		Username:          cfg.Operator.Username,
		PasswordHash:      cfg.Operator.PasswordHash,
	})
	metricsHandler := handler.NewMetricsHandler(metrics, st, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Records:       handler.NewRecordsHandler(res.Records, res.Exporter, logr),
		Relationships: handler.NewRelationshipHandler(res.Records.Departments, res.Records.Students),
	}, middleware.JWT(authSvc))

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "database", cfg.Mongo.Database)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
