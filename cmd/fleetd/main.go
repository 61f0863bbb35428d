// Command fleetd serves the fleet registry API and its push channel.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/auth"
	"github.com/ukydev/fleet-registry/internal/config"
	"github.com/ukydev/fleet-registry/internal/db"
	"github.com/ukydev/fleet-registry/internal/events"
	"github.com/ukydev/fleet-registry/internal/handlers"
	"github.com/ukydev/fleet-registry/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("fleetd stopped")
	}
	log.Info("fleetd stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	log.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB")

	database := client.Database(cfg.Mongo.Database)
	vehicles := &db.MongoCollection{Collection: database.Collection("vehicles")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}
	if err := vehicles.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}

	store, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	log.WithField("type", cfg.Storage.Type).Info("Document storage ready")

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	hub := events.NewHub(authService)
	go hub.Run(ctx)

	var broker mqtt.Client
	if cfg.MQTT.Broker != "" {
		broker, err = events.ConnectMQTT(cfg.MQTT)
		if err != nil {
			return err
		}
	}
	publisher := buildPublisher(hub, broker, cfg.MQTT.TopicPrefix)
	if broker != nil {
		defer broker.Disconnect(250)
	}

	router := handlers.NewRouter(handlers.Deps{
		Vehicles:     vehicles,
		Users:        users,
		Store:        store,
		Publisher:    publisher,
		Auth:         authService,
		Hub:          hub,
		SignedURLTTL: cfg.Storage.SignedURLTTL,
		AlertDays:    cfg.AlertDays,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv)
}

// buildPublisher fans events out to WebSocket clients and, when a broker is
// connected, to MQTT.
func buildPublisher(hub *events.Hub, broker mqtt.Client, prefix string) events.Publisher {
	sinks := events.Fanout{hub}
	if broker != nil {
		sinks = append(sinks, events.NewMQTTPublisher(broker, prefix))
	}
	return sinks
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
