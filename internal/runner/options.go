package runner

import (
	"github.com/SherClockHolmes/webpush-go"

	"procedure-scheduler-backend/config"
	"procedure-scheduler-backend/internal/engine"
)

// EngineOptions maps the scheduler section of the config onto engine options.
func EngineOptions(cfg *config.SchedulerConfig) engine.Options {
	return engine.Options{
		Seats:          cfg.Seats,
		HoursPerDay:    cfg.HoursPerDay,
		DayStart:       cfg.DayStartOffset,
		Location:       cfg.Location,
		MismatchPolicy: engine.MismatchPolicy(cfg.MismatchPolicy),
		TimeBudget:     cfg.TimeBudget,
		NodeLimit:      cfg.NodeLimit,
		MaxVariables:   cfg.MaxVariables,
	}
}

// PushOptions builds the webpush options, or nil when VAPID keys are missing.
func PushOptions(cfg *config.PushConfig) *webpush.Options {
	if !cfg.Enabled() {
		return nil
	}
	return &webpush.Options{
		Subscriber:      cfg.Subject,
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		TTL:             cfg.TTL,
	}
}
