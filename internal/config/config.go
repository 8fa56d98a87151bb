package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time expresses pool lifetimes and timeouts
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Strings are used for identifiers and ports,
// ints for counts and durations expressed in whole days.
type Config struct {
	Env                string        // application environment (e.g. "dev", "prod")
	Port               string        // HTTP port to listen on
	DBUser             string        // database username
	DBPass             string        // database password (optional)
	DBHost             string        // database host address
	DBPort             string        // database port number
	DBName             string        // database name
	DBMaxOpenConns     int           // connection pool ceiling
	DBMaxIdleConns     int           // idle connections kept around
	DBConnMaxLifetime  time.Duration // recycle age for pooled connections
	DBPingTimeout      time.Duration // startup connectivity check bound
	MaxActiveBorrows   int           // maximum simultaneous active borrows per member
	BorrowDurationDays int           // loan duration used to compute due dates
	MaxPageSize        int           // upper bound applied to list endpoint limits
	LowStockRatio      float64       // available/total fraction below which a book counts as low stock
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Business tunables
// fall back to the documented defaults.
func Load() Config {
	return Config{
		Env:                must("APP_ENV"),      // environment (dev/test/prod)
		Port:               must("APP_PORT"),     // port to bind the HTTP server
		DBUser:             must("DB_USER"),      // database user
		DBPass:             os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:             must("DB_HOST"),      // database host
		DBPort:             must("DB_PORT"),      // database port
		DBName:             must("DB_NAME"),      // database name
		DBMaxOpenConns:     envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:     envInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime:  envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		DBPingTimeout:      envDur("DB_PING_TIMEOUT", 5*time.Second),
		MaxActiveBorrows:   envInt("MAX_ACTIVE_BORROWS", 5),
		BorrowDurationDays: envInt("BORROW_DURATION_DAYS", 14),
		MaxPageSize:        envInt("MAX_PAGE_SIZE", 100),
		LowStockRatio:      envFloat("LOW_STOCK_RATIO", 0.25),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		return f
	}
	return d
}
