package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	RunAddress    string
	DatabaseURI   string
	LogLevel      string
	JWTSecret     string
	TokenSecret   string
	NotifyAddress string

	// PointsPerUnit is how many points one currency unit converts to.
	PointsPerUnit int64

	// Default allocation split, percent of the monthly points.
	// Per-student overrides live on the students table.
	SpendablePct int
	InvestedPct  int
	InsurancePct int

	SweepInterval time.Duration
)

func ParseFlags() {
	godotenv.Load()

	flag.StringVar(&RunAddress, "a", ":8080", "address to run server")
	flag.StringVar(&DatabaseURI, "d", "", "database uri")
	flag.StringVar(&LogLevel, "l", "info", "log level")
	flag.StringVar(&JWTSecret, "j", "edupoints-dev-secret", "jwt signing secret")
	flag.StringVar(&TokenSecret, "t", "edupoints-fulfillment-secret", "fulfillment token secret")
	flag.StringVar(&NotifyAddress, "n", "", "notification sink address")
	flag.Int64Var(&PointsPerUnit, "p", 1000, "points per currency unit")
	flag.IntVar(&SpendablePct, "spendable", 40, "spendable percent of monthly points")
	flag.IntVar(&InvestedPct, "invested", 30, "invested percent of monthly points")
	flag.IntVar(&InsurancePct, "insurance", 30, "insurance percent of monthly points")
	flag.DurationVar(&SweepInterval, "sweep", time.Minute, "opt-out lapse sweep interval")
	flag.Parse()

	if envRunAddr := os.Getenv("RUN_ADDRESS"); envRunAddr != "" {
		RunAddress = envRunAddr
	}
	if databaseURI := os.Getenv("DATABASE_URI"); databaseURI != "" {
		DatabaseURI = databaseURI
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		LogLevel = logLevel
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		JWTSecret = jwtSecret
	}
	if tokenSecret := os.Getenv("FULFILLMENT_TOKEN_SECRET"); tokenSecret != "" {
		TokenSecret = tokenSecret
	}
	if notifyAddress := os.Getenv("NOTIFY_ADDRESS"); notifyAddress != "" {
		NotifyAddress = notifyAddress
	}
	if pointsPerUnit := os.Getenv("POINTS_PER_UNIT"); pointsPerUnit != "" {
		if parsed, err := strconv.ParseInt(pointsPerUnit, 10, 64); err == nil {
			PointsPerUnit = parsed
		}
	}
	if sweepInterval := os.Getenv("SWEEP_INTERVAL"); sweepInterval != "" {
		if parsed, err := time.ParseDuration(sweepInterval); err == nil {
			SweepInterval = parsed
		}
	}
}
