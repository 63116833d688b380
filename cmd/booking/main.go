package main

import (
	availabilityhandler "serein/internal/availability/handler"
	availabilityrepo "serein/internal/availability/repository"
	availabilityservice "serein/internal/availability/service"
	bookinghandler "serein/internal/bookings/handler"
	bookingrepo "serein/internal/bookings/repository"
	bookingservice "serein/internal/bookings/service"
	"serein/internal/bookings/validator"
	lockhandler "serein/internal/locks/handler"
	lockrepo "serein/internal/locks/repository"
	lockservice "serein/internal/locks/service"
	"serein/internal/notifier"
	therapisthandler "serein/internal/therapists/handler"
	therapistrepo "serein/internal/therapists/repository"
	therapistservice "serein/internal/therapists/service"
	"serein/pkg/app"
	"serein/pkg/config"
	kafka_config "serein/pkg/kafka/config"
)

const ServiceName = "booking"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	publisher, err := notifier.NewPublisher(kafkaCfg, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create availability publisher", "error", err)
	}

	cfg.Log.Info("Starting booking service")

	therapistDirectory := therapistservice.NewDirectoryService(
		therapistrepo.NewMongoTherapistRepository(cfg),
		cfg,
	)
	resolver := availabilityservice.NewResolverService(
		therapistrepo.NewMongoTherapistRepository(cfg),
		availabilityrepo.NewMongoOccupancyRepository(cfg),
		cfg,
	)
	lockManager := lockservice.NewLockService(
		lockrepo.NewMongoSlotLockRepository(cfg),
		publisher,
		cfg,
	)
	committer := bookingservice.NewBookingService(
		bookingrepo.NewMongoBookingRepository(cfg),
		validator.NewBookingValidator(cfg.Log),
		lockManager,
		publisher,
		cfg,
	)

	cfg.Log.Info("Booking services initialized", "database", cfg.MongoDatabaseName)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		therapisthandler.NewTherapistHandler(therapistDirectory, cfg.Log),
		availabilityhandler.NewAvailabilityHandler(resolver, cfg.Log),
		lockhandler.NewLockHandler(lockManager, cfg.Log),
		bookinghandler.NewBookingHandler(committer, cfg.Log),
	)
	serverApp.OnShutdown(func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close availability publisher", "error", err)
		}
		cfg.GracefulShutdown()
	})
	serverApp.Run()
}
