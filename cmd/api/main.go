package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"campaignhub/internal/adapter/api"
	"campaignhub/internal/adapter/api/handler"
	apimiddleware "campaignhub/internal/adapter/api/middleware"
	"campaignhub/internal/adapter/api/router"
	"campaignhub/internal/adapter/repository"
	"campaignhub/internal/domain/entity"
	domainrepo "campaignhub/internal/domain/repository"
	"campaignhub/internal/domain/service"
	"campaignhub/internal/infrastructure/auth"
	"campaignhub/internal/infrastructure/firebase"
	"campaignhub/internal/infrastructure/pubsub"
	"campaignhub/internal/infrastructure/ratelimit"
	"campaignhub/internal/infrastructure/storage"
	"campaignhub/internal/infrastructure/websocket"
	"campaignhub/internal/usecase"
	"campaignhub/pkg/config"
)

type stores struct {
	rooms     domainrepo.RoomRepository
	messages  domainrepo.MessageRepository
	contracts domainrepo.ContractRepository
	escrow    domainrepo.EscrowRepository
	users     domainrepo.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []option.ClientOption
	if cfg.FirebaseServiceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON)))
	} else if cfg.FirebaseServiceAccountPath != "" {
		if _, err := os.Stat(cfg.FirebaseServiceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", cfg.FirebaseServiceAccountPath)
		}
		log.Printf("Using Firebase service account from file: %s", cfg.FirebaseServiceAccountPath)
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseServiceAccountPath))
	}

	checks := map[string]handler.HealthCheck{}

	var firebaseApp *fbapp.App
	if cfg.AuthDriver == "firebase" {
		firebaseApp, err = fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	var repos stores
	switch cfg.StoreDriver {
	case "firestore":
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		repos = stores{
			rooms:     repository.NewFirestoreRoomRepository(firestoreClient),
			messages:  repository.NewFirestoreMessageRepository(firestoreClient),
			contracts: repository.NewFirestoreContractRepository(firestoreClient),
			escrow:    repository.NewFirestoreEscrowRepository(firestoreClient),
			users:     repository.NewFirestoreUserRepository(firestoreClient),
		}
		checks["firestore"] = func(ctx context.Context) error {
			_, err := firestoreClient.Collection("users").Limit(1).Documents(ctx).Next()
			if err == iterator.Done {
				return nil
			}
			return err
		}
	default:
		log.Printf("Using in-memory store; data is lost on restart")
		repos = stores{
			rooms:     repository.NewMemoryRoomRepository(),
			messages:  repository.NewMemoryMessageRepository(),
			contracts: repository.NewMemoryContractRepository(),
			escrow:    repository.NewMemoryEscrowRepository(),
			users:     repository.NewMemoryUserRepository(),
		}
	}

	var fileStorage service.FileStorage
	switch cfg.StorageDriver {
	case "minio":
		minioClient, err := storage.NewMinioClient(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.StorageBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("Failed to initialize MinIO: %v", err)
		}
		if err := minioClient.EnsureBucket(ctx); err != nil {
			log.Fatalf("Failed to prepare MinIO bucket: %v", err)
		}
		checks["storage"] = minioClient.EnsureBucket
		fileStorage = minioClient
	default:
		gcsClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Cloud Storage: %v", err)
		}
		fileStorage = gcsClient
	}
	defer fileStorage.Close()

	var verifier auth.TokenVerifier
	switch cfg.AuthDriver {
	case "jwt":
		hmac := auth.NewHMACVerifier(cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Second)
		verifier = hmac
		if cfg.StoreDriver == "memory" {
			seedUsers(ctx, repos.users, hmac, cfg)
		}
	case "jwks":
		jwks, err := auth.NewJWKSVerifier(cfg.JWKSURL)
		if err != nil {
			log.Fatalf("Failed to load JWKS: %v", err)
		}
		defer jwks.Close()
		verifier = jwks
	default:
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)
	}

	g, gctx := errgroup.WithContext(ctx)

	wsManager := websocket.NewManager()
	var publisher service.EventPublisher = wsManager
	if cfg.RedisURL != "" {
		broker, err := pubsub.NewRedisBroker(cfg.RedisURL, wsManager)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer broker.Close()

		publisher = broker
		wsManager.SetPublisher(broker)
		checks["redis"] = broker.Ping
		g.Go(func() error {
			return broker.Run(gctx, nil)
		})
	}

	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine(gctx.Done())

	chatUseCase := usecase.NewChatUseCase(
		repos.rooms,
		repos.messages,
		repos.contracts,
		repos.users,
		publisher,
		fileStorage,
		rateLimiter,
		cfg.TypingTTL,
	)
	escrowService := service.NewLedgerEscrowService(repos.escrow)
	contractUseCase := usecase.NewContractUseCase(repos.contracts, escrowService, publisher)
	milestoneUseCase := usecase.NewMilestoneUseCase(repos.contracts, fileStorage, publisher, rateLimiter)
	overdueDetector := usecase.NewOverdueDetector(repos.contracts, publisher, cfg.OverdueScanInterval)

	wsManager.SetRoomActions(chatUseCase)
	wsManager.Start(gctx)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins(cfg.AllowedOrigins),
	}))
	e.Use(middleware.BodyLimit("210M"))

	e.Validator = api.NewValidator()

	router.Setup(e, router.Handlers{
		Room:      handler.NewRoomHandler(chatUseCase),
		Contract:  handler.NewContractHandler(contractUseCase),
		Milestone: handler.NewMilestoneHandler(milestoneUseCase),
		WebSocket: handler.NewWebSocketHandler(gctx, wsManager, cfg.AllowedOrigins),
		Health:    handler.NewHealthHandler(checks),
	}, apimiddleware.NewAuthMiddleware(verifier, repos.users), rateLimiter)

	g.Go(func() error {
		return overdueDetector.Run(gctx)
	})

	g.Go(func() error {
		log.Printf("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
	}
}

func allowOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// seedUsers creates the DEV_USERS accounts in the memory store and logs a
// token for each outside production.
func seedUsers(ctx context.Context, users domainrepo.UserRepository, issuer *auth.HMACVerifier, cfg *config.Config) {
	for _, item := range strings.Split(cfg.DevUsers, ",") {
		id, role, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok || id == "" {
			continue
		}
		user := &entity.User{
			ID:        id,
			Username:  id,
			Role:      entity.Role(role),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := users.Create(ctx, user); err != nil {
			log.Printf("Failed to seed user %s: %v", id, err)
			continue
		}
		if cfg.IsProduction() {
			continue
		}
		token, err := issuer.IssueToken(id)
		if err != nil {
			log.Printf("Failed to issue token for %s: %v", id, err)
			continue
		}
		log.Printf("Dev user %s (%s) token: %s", id, role, token)
	}
}
