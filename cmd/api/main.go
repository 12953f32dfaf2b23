package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"univmarket/internal/adapter/api"
	"univmarket/internal/adapter/repository"
	"univmarket/internal/domain/entity"
	"univmarket/internal/infrastructure/firebase"
	"univmarket/internal/infrastructure/ratelimit"
	"univmarket/internal/infrastructure/websocket"
	"univmarket/pkg/config"
	"univmarket/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := api.ServerDeps{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestLogging: cfg.IsDevelopment(),
		DevRoutes:      cfg.IsDevelopment(),
	}

	if cfg.FirebaseProject != "" {
		firestoreClient, verifier, err := setupFirebase(ctx, cfg)
		if err != nil {
			logger.Error("Failed to initialize Firebase: %v", err)
			os.Exit(1)
		}
		defer firestoreClient.Close()

		deps.ChatRepo = repository.NewFirestoreChatRepository(firestoreClient)
		deps.ProductRepo = repository.NewFirestoreProductRepository(firestoreClient)
		deps.UserRepo = repository.NewFirestoreUserRepository(firestoreClient)
		deps.Verifier = verifier
		deps.StorageName = "firestore"
	} else {
		logger.Warn("FIREBASE_PROJECT_ID not set, using in-memory storage and dev tokens")
		store := repository.NewMemoryStore()
		if err := seedDemoData(ctx, store); err != nil {
			logger.Error("Failed to seed demo data: %v", err)
			os.Exit(1)
		}
		deps.ChatRepo = store.Chats()
		deps.ProductRepo = store.Products()
		deps.UserRepo = store.Users()
		deps.Verifier = firebase.NewDevTokenVerifier(nil)
		deps.StorageName = "memory"
	}

	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.SetPolicy(ratelimit.ActionSendMessage, ratelimit.Policy{
		Burst:    cfg.SendMessageBurst,
		Interval: cfg.SendMessageInterval,
	})
	rateLimiter.StartCleanupRoutine(ctx.Done())
	deps.RateLimiter = rateLimiter

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)
	deps.WSManager = wsManager

	e := api.NewServer(deps)

	go func() {
		logger.Info("Starting server on port %s (%s)", cfg.ServerPort, cfg.Environment)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

func setupFirebase(ctx context.Context, cfg *config.Config) (*firestore.Client, firebase.Verifier, error) {
	var opts []option.ClientOption
	switch {
	case cfg.ServiceAccountJSON != "":
		logger.Info("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.ServiceAccountPath != "":
		if _, err := os.Stat(cfg.ServiceAccountPath); err != nil {
			return nil, nil, err
		}
		logger.Info("Using Firebase service account from file: %s", cfg.ServiceAccountPath)
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
	default:
		logger.Info("Using application default credentials")
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		return nil, nil, err
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, nil, err
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		return nil, nil, err
	}

	var verifier firebase.Verifier = firebase.NewFirebaseAuthClient(authClient)
	if cfg.IsDevelopment() {
		verifier = firebase.NewDevTokenVerifier(verifier)
	}
	return firestoreClient, verifier, nil
}

// seedDemoData gives a fresh in-memory server one seller, one buyer and one listing so
// cmd/chatroom works out of the box with dev-sena / dev-bora tokens.
func seedDemoData(ctx context.Context, store *repository.MemoryStore) error {
	users := []*entity.User{
		{ID: "sena", Nickname: "Sena"},
		{ID: "bora", Nickname: "Bora"},
	}
	for _, u := range users {
		if err := store.Users().Create(ctx, u); err != nil {
			return err
		}
	}
	return store.Products().Create(ctx, &entity.Product{
		ID:       "bicycle",
		SellerID: "sena",
		Title:    "Used bicycle",
		Price:    45000,
	})
}
