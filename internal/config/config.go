package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.  Durations are expressed in
// the unit named by the variable so operators never guess.
type Config struct {
	Env                 string // application environment (e.g. "dev", "prod")
	Port                string // HTTP port to listen on
	DBUser              string // database username
	DBPass              string // database password (optional)
	DBHost              string // database host address
	DBPort              string // database port number
	DBName              string // database name
	DBMaxOpenConns      int    // connection pool ceiling
	DBMaxIdleConns      int    // idle connections kept warm
	DBConnMaxLifeMin    int    // minutes before a pooled connection is recycled
	JWTSecret           string // secret used to verify buyer access tokens
	QRSecret            string // secret used to sign ticket QR payloads
	ReservationTTLMin   int    // minutes a HELD reservation survives unpurchased
	SweepIntervalSec    int    // seconds between expiry sweep passes
	IdempotencyTTLHours int    // hours an idempotency record is retained
	PaymentURL          string // base URL of the external payment provider
	PaymentTimeoutSec   int    // per-attempt timeout for payment calls in seconds
}

// Load reads configuration values from environment variables and
// returns a Config.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
// Tunables with safe defaults use intOr().
func Load() Config {
	return Config{
		Env:                 must("APP_ENV"),
		Port:                must("APP_PORT"),
		DBUser:              must("DB_USER"),
		DBPass:              os.Getenv("DB_PASS"), // empty allowed
		DBHost:              must("DB_HOST"),
		DBPort:              must("DB_PORT"),
		DBName:              must("DB_NAME"),
		DBMaxOpenConns:      intOr("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:      intOr("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMin:    intOr("DB_CONN_MAX_LIFE_MIN", 30),
		JWTSecret:           must("JWT_SECRET"),
		QRSecret:            must("QR_SECRET"),
		ReservationTTLMin:   intOr("RESERVATION_TTL_MIN", 10),
		SweepIntervalSec:    intOr("SWEEP_INTERVAL_SEC", 30),
		IdempotencyTTLHours: intOr("IDEMPOTENCY_TTL_HOURS", 24),
		PaymentURL:          must("PAYMENT_URL"),
		PaymentTimeoutSec:   intOr("PAYMENT_TIMEOUT_SEC", 10),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and
// exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intOr retrieves an integer environment variable, falling back to the
// given default when the variable is unset.  A set-but-unparsable
// value is a fatal configuration error rather than a silent default.
func intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
