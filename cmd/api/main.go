package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giu-carpool/booking-service/internal/bookings"
	"github.com/giu-carpool/booking-service/internal/config"
	"github.com/giu-carpool/booking-service/internal/httpx"
	kafkax "github.com/giu-carpool/booking-service/internal/kafka"
	"github.com/giu-carpool/booking-service/internal/notify"
	"github.com/giu-carpool/booking-service/internal/postgres"
	"github.com/giu-carpool/booking-service/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers)

	// Saga & handler
	bookingRepo := &bookings.BookingRepo{DB: db}
	rideRepo := &bookings.RideRepo{DB: db}
	saga := &bookings.Saga{
		Bookings:  bookingRepo,
		Rides:     rideRepo,
		Publisher: prod,
		Notifier:  notify.New(cfg.NotificationURL, log.Default()),
		Cache:     rdb,
		Log:       log.Default(),
	}

	router := httpx.NewRouter(cfg.JWTSecret)
	h := &httpx.BookingsHandler{
		Saga:     saga,
		Bookings: bookingRepo,
		Rides:    rideRepo,
		Redis:    rdb,
	}
	h.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if err := prod.Close(); err != nil {
		log.Printf("producer close: %v", err)
	}
}
