package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procedure-scheduler-backend/config"
	"procedure-scheduler-backend/internal/engine"
	"procedure-scheduler-backend/internal/parse"
	"procedure-scheduler-backend/internal/runner"
)

func main() {
	logger := log.New(os.Stderr, "schedule ", log.LstdFlags)

	backlogPath := flag.String("backlog", "", "backlog CSV (Patient Name, Procedure Type)")
	durationsPath := flag.String("durations", "", "duration CSV (ProcedureType, TurnAroundTime)")
	start := flag.String("start", "", "first day, YYYY-MM-DD")
	end := flag.String("end", "", "last day, YYYY-MM-DD")
	out := flag.String("out", "-", "output CSV, - for stdout")
	lpPath := flag.String("lp", "", "also write the model in CPLEX LP format to this file")
	configPath := flag.String("config", "", "optional YAML config for scheduler settings")
	flag.Parse()

	if *backlogPath == "" || *durationsPath == "" || *start == "" || *end == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("failed to load configuration from %s: %v", *configPath, err)
		}
	}

	req, err := buildRequest(*backlogPath, *durationsPath, *start, *end, cfg.Scheduler.Location)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := engine.NewScheduler(runner.EngineOptions(&cfg.Scheduler), nil)

	if *lpPath != "" {
		if err := writeLP(ctx, scheduler, req, *lpPath); err != nil {
			logger.Fatalf("failed to write LP model: %v", err)
		}
		logger.Printf("model written to %s", *lpPath)
	}

	res, err := scheduler.Schedule(ctx, req)
	if err != nil {
		logger.Fatalf("scheduling failed (%s): %v", engine.ErrorKind(err), err)
	}

	d := res.Diagnostics
	logger.Printf("booked %d of %d tasks over %d days (optimal=%t)", len(res.Bookings), len(res.Tasks), len(res.Horizon), d.Optimal)
	if len(d.Excluded) > 0 {
		logger.Printf("%d backlog rows had no duration and were excluded", len(d.Excluded))
	}
	if len(d.Unschedulable) > 0 {
		logger.Printf("%d tasks are longer than the working day", len(d.Unschedulable))
	}
	if len(d.Unplaced) > 0 {
		logger.Printf("%d tasks did not fit in the horizon", len(d.Unplaced))
	}
	if len(d.Shortfalls) > 0 {
		logger.Printf("%d hours fell below the seat utilisation floor", len(d.Shortfalls))
	}

	if err := writeBookings(*out, res.Bookings); err != nil {
		logger.Fatalf("failed to write schedule: %v", err)
	}
}

func buildRequest(backlogPath, durationsPath, start, end string, loc *time.Location) (engine.Request, error) {
	var req engine.Request
	var err error

	if req.StartDate, err = time.ParseInLocation("2006-01-02", start, loc); err != nil {
		return req, fmt.Errorf("invalid -start: %w", err)
	}
	if req.EndDate, err = time.ParseInLocation("2006-01-02", end, loc); err != nil {
		return req, fmt.Errorf("invalid -end: %w", err)
	}

	bf, err := os.Open(backlogPath)
	if err != nil {
		return req, err
	}
	defer bf.Close()
	if req.Backlog, err = parse.ReadBacklog(bf); err != nil {
		return req, fmt.Errorf("%s: %w", backlogPath, err)
	}

	df, err := os.Open(durationsPath)
	if err != nil {
		return req, err
	}
	defer df.Close()
	if req.Durations, err = parse.ReadDurations(df); err != nil {
		return req, fmt.Errorf("%s: %w", durationsPath, err)
	}
	return req, nil
}

func writeLP(ctx context.Context, s *engine.Scheduler, req engine.Request, path string) error {
	m, err := s.Model(ctx, req)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := engine.WriteLP(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeBookings(path string, bookings []engine.Booking) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return parse.WriteBookings(w, bookings)
}
