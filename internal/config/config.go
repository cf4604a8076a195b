package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// Store backends accepted by STORE_BACKEND.
const (
    BackendMemory    = "memory"
    BackendMySQL     = "mysql"
    BackendFirestore = "firestore"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    AppID          string // namespace of every document path
    StoreBackend   string // memory, mysql or firestore
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time‑to‑live in minutes
    RefreshTTLDays int    // refresh token time‑to‑live in days
    BcryptCost     int    // bcrypt cost for password hashing
    RabbitMQURL    string // broker for score events; empty disables publishing

    TextFetchURL     string        // generic text service
    TextFetchTimeout time.Duration // hard timeout of one text fetch
    AIAPIURL         string        // chat completion endpoint; empty disables AI text
    AIAPIKey         string
    AIModel          string

    FirestoreProjectID       string
    FirestoreCredentialsFile string

    LogLevel string
    LogJSON  bool
}

// Load reads an optional .env file and then the environment.  Required
// variables are enforced by must() and missing values cause the program to
// exit with a fatal log message.
func Load() Config {
    // .env is optional; real environment variables win over it.
    _ = godotenv.Load()

    cfg := Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        AppID:          envStr("APP_ID", "default-app-id"),
        StoreBackend:   strings.ToLower(envStr("STORE_BACKEND", BackendMySQL)),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),
        RabbitMQURL:    os.Getenv("RABBITMQ_URL"),

        TextFetchURL:     envStr("TEXT_FETCH_URL", "https://jsonplaceholder.typicode.com"),
        TextFetchTimeout: envDur("TEXT_FETCH_TIMEOUT", 10*time.Second),
        AIAPIURL:         os.Getenv("AI_API_URL"),
        AIAPIKey:         os.Getenv("AI_API_KEY"),
        AIModel:          envStr("AI_MODEL", "gpt-4o-mini"),

        FirestoreProjectID:       os.Getenv("FIRESTORE_PROJECT_ID"),
        FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),

        LogLevel: envStr("LOG_LEVEL", "info"),
        LogJSON:  envBool("LOG_JSON", false),
    }

    switch cfg.StoreBackend {
    case BackendMemory, BackendMySQL:
    case BackendFirestore:
        if cfg.FirestoreProjectID == "" {
            log.Fatalf("missing required env var: FIRESTORE_PROJECT_ID")
        }
    default:
        log.Fatalf("invalid STORE_BACKEND: %q", cfg.StoreBackend)
    }
    return cfg
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

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
