package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/app"
	"github.com/gloodan17/Course-Enrollment-Database/internal/cli"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/config"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/database"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/logger"
)

func main() {
	var offline bool
	flag.BoolVar(&offline, "offline", false, "Keep records in memory instead of connecting to MongoDB")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.NewInteractive(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)

	var st store.Store
	if offline {
		st = store.NewMemoryStore()
		fmt.Println("Working offline; records are discarded on exit.")
	} else {
		if cfg.Mongo.URI == "" {
			uri, err := promptAtlasURI(in, os.Stdout)
			if err != nil {
				log.Fatalf("failed to read connection details: %v", err)
			}
			cfg.Mongo.URI = uri
		}
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			logr.Fatal("failed to connect to mongo", zap.Error(err))
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}()
		st = store.NewMongoStore(db, logr)
	}

	res, err := app.Open(ctx, cfg, st, logr, nil)
	if err != nil {
		logr.Fatal("failed to prepare collections", zap.Error(err))
	}
	defer res.Close()

	deps := cli.Dependencies{
		Records:     res.Records,
		Departments: res.Records.Departments,
		Students:    res.Records.Students,
		Logger:      logr,
	}
	if cfg.Export.Dir != "" {
		deps.Exporter = res.Exporter
	}

	if err := cli.NewSession(in, os.Stdout, deps).Run(ctx); err != nil && ctx.Err() == nil {
		logr.Error("session ended", zap.Error(err))
	}
}

// promptAtlasURI asks for hosted cluster credentials when MONGO_URI is unset.
func promptAtlasURI(in io.Reader, out io.Writer) (string, error) {
	p := cli.NewPrompter(in, out, nil)
	username, err := p.Line("Cluster username")
	if err != nil {
		return "", err
	}
	password, err := p.Line("Cluster password")
	if err != nil {
		return "", err
	}
	project, err := p.Line("Project name")
	if err != nil {
		return "", err
	}
	hashName, err := p.Line("Cluster hash name")
	if err != nil {
		return "", err
	}
	return config.AtlasURI(username, password, project, hashName), nil
}
