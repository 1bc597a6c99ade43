package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/giu-carpool/booking-service/internal/bookings"
	"github.com/giu-carpool/booking-service/internal/config"
	kafkax "github.com/giu-carpool/booking-service/internal/kafka"
	"github.com/giu-carpool/booking-service/internal/notify"
	"github.com/giu-carpool/booking-service/internal/postgres"
	"github.com/giu-carpool/booking-service/internal/redisx"
	"github.com/giu-carpool/booking-service/internal/replica"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	bookingRepo := &bookings.BookingRepo{DB: db}
	rideRepo := &bookings.RideRepo{DB: db}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Outcome half of the saga. The worker never publishes, so no producer.
	saga := &bookings.Saga{
		Bookings: bookingRepo,
		Rides:    rideRepo,
		Notifier: notify.New(cfg.NotificationURL, log.Default()),
		Cache:    rdb,
		Log:      log.Default(),
	}
	sync := &replica.Service{Rides: rideRepo, Log: log.Default()}

	handle := func(ctx context.Context, m kafkago.Message) error {
		switch m.Topic {
		case bookings.TopicPassengerAdded:
			ev, err := kafkax.Decode[bookings.PassengerOutcomeEvent](m)
			if err != nil {
				log.Printf("worker: %v, skipping", err)
				return nil
			}
			return saga.HandlePassengerAdded(ctx, ev.BookingID, ev.Email)
		case bookings.TopicPassengerAddFailed:
			ev, err := kafkax.Decode[bookings.PassengerOutcomeEvent](m)
			if err != nil {
				log.Printf("worker: %v, skipping", err)
				return nil
			}
			return saga.HandlePassengerAddFailed(ctx, ev.BookingID, ev.Email, ev.Reason)
		case bookings.TopicRideCreated, bookings.TopicRideUpdated:
			return sync.HandleRideSync(ctx, m)
		case bookings.TopicPassengerAddedToRide:
			return sync.HandlePassengerAdded(ctx, m)
		case bookings.TopicPassengerRemovedFromRide:
			return sync.HandlePassengerRemoved(ctx, m)
		case bookings.TopicRideStatusChanged:
			return sync.HandleRideStatus(ctx, m)
		default:
			return nil
		}
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, bookings.InboundTopics)
	go func() {
		log.Printf("worker consumer started: group=%s topics=%v", cfg.ConsumerGroup, bookings.InboundTopics)
		if err := cons.Start(ctx, handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// Reconciliation sweep for bookings stuck in PENDING.
	if cfg.SweepAge > 0 {
		go func() {
			t := time.NewTicker(cfg.SweepInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if _, err := saga.SweepStalePending(ctx, cfg.SweepAge); err != nil {
						log.Printf("sweep: %v", err)
					}
				}
			}
		}()
	}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down worker...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
