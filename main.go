package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v81"

	"storefront-service/handlers"
	"storefront-service/internal/addresses"
	"storefront-service/internal/auth"
	"storefront-service/internal/checkout"
	"storefront-service/internal/consul"
	"storefront-service/internal/orders"
	"storefront-service/internal/reconcile"
	"storefront-service/internal/refunds"
	"storefront-service/internal/stores/kafka"
	"storefront-service/internal/stores/postgres"
)

func main() {
	setupSlog()

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment")
	}

	if err := startApp(); err != nil {
		slog.Error("service startup failed", slog.String("Error", err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is not set")
	}
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")

	slog.Info("connecting to database")
	db, err := postgres.OpenDB()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	ordersConf, err := orders.NewConf(db)
	if err != nil {
		return err
	}
	addressesConf, err := addresses.NewConf(db)
	if err != nil {
		return err
	}

	// Kafka is optional: without brokers the service still reconciles and
	// refunds, it just publishes no events.
	var reconProducer reconcile.EventProducer
	var refundProducer refunds.EventProducer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaConf, err := kafka.NewConf(strings.Split(brokers, ","))
		if err != nil {
			return fmt.Errorf("kafka setup failed: %w", err)
		}
		defer kafkaConf.Close()
		reconProducer = kafkaConf
		refundProducer = kafkaConf
		slog.Info("kafka producer connected", slog.String("Brokers", brokers))
	} else {
		slog.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	reconciler, err := reconcile.NewReconciler(ordersConf, reconcile.StripeSessions{}, reconProducer)
	if err != nil {
		return err
	}
	refundSvc, err := refunds.NewService(ordersConf, refunds.StripeProvider{}, refundProducer)
	if err != nil {
		return err
	}

	keyFile := os.Getenv("AUTH_PUBLIC_KEY_FILE")
	if keyFile == "" {
		keyFile = "pubkey.pem"
	}
	publicPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return fmt.Errorf("reading auth public key: %w", err)
	}
	keys, err := auth.NewKeys(publicPEM)
	if err != nil {
		return fmt.Errorf("auth setup failed: %w", err)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8085"
	}

	if os.Getenv("CONSUL_HTTP_ADDR") != "" {
		if err := registerWithConsul(port); err != nil {
			return err
		}
	}

	api := http.Server{
		Addr:         ":" + port,
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler: handlers.API("/v1", keys, ordersConf, addressesConf,
			checkout.StripeCatalog{}, reconciler, refundSvc, webhookSecret),
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("server started", slog.String("Address", api.Addr))
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info("shutdown initiated", slog.String("Signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			if closeErr := api.Close(); closeErr != nil {
				return fmt.Errorf("could not stop server gracefully: %w", closeErr)
			}
			return fmt.Errorf("graceful shutdown did not complete: %w", err)
		}
	}
	return nil
}

func registerWithConsul(port string) error {
	client, err := consul.NewClient()
	if err != nil {
		return err
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid APP_PORT %q: %w", port, err)
	}
	serviceName := "storefront-service"
	host := os.Getenv("SERVICE_HOST")
	if host == "" {
		host = "localhost"
	}
	serviceID := fmt.Sprintf("%s-%s-%s", serviceName, host, port)
	if err := consul.RegisterService(client, serviceID, serviceName, host, portNum); err != nil {
		return err
	}
	slog.Info("registered with consul", slog.String("Service ID", serviceID))
	return nil
}

func setupSlog() {
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)
}
