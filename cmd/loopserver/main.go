package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loops-server/internal/config"
	"loops-server/internal/httpapi"
	"loops-server/internal/repository"
	"loops-server/internal/service"
)

func main() {
	importFile := flag.String("import", "", "path to a local-storage JSON snapshot to import, then exit")
	importEmail := flag.String("import-email", "", "email of the account to import the snapshot into")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	loopRepo := repository.NewLoopRepository(db)

	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	loopSvc := service.NewLoopService(loopRepo)
	syncSvc := service.NewSyncService(loopRepo)
	expirySvc := service.NewExpiryService(loopRepo)

	if *importFile != "" {
		if err := importSnapshot(ctx, userRepo, syncSvc, *importFile, *importEmail); err != nil {
			log.Fatalf("import: %v", err)
		}
		return
	}

	scheduler := service.NewSchedulerService(time.Local)
	if cfg.ExpireInterval > 0 {
		if _, err := scheduler.ScheduleInterval(cfg.ExpireInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			n, err := expirySvc.ExpireOverdue(jobCtx, time.Now().UTC())
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("expire: %v", err)
				return
			}
			if n > 0 {
				log.Printf("expired %d loops", n)
			}
		}); err != nil {
			log.Fatalf("schedule expiry: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	api := httpapi.NewServer(authSvc, loopSvc, syncSvc)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("loops server listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}

// importSnapshot reconciles a pre-backend local-storage snapshot into an
// existing account, reusing the same merge path the sync endpoint runs.
func importSnapshot(ctx context.Context, users *repository.UserRepository, sync *service.SyncService, path, email string) error {
	if email == "" {
		return fmt.Errorf("-import-email is required with -import")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var loops []service.WireLoop
	if err := json.Unmarshal(data, &loops); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find user %q: %w", email, err)
	}
	result, err := sync.Reconcile(ctx, user.ID, loops, nil)
	if err != nil {
		return err
	}
	log.Printf("imported %d loops for %s", len(result.Loops), email)
	return nil
}
