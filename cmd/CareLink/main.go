package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/JoyZhuoz/CareLink-sub000/internal/api"
	"github.com/JoyZhuoz/CareLink-sub000/internal/genai"
	"github.com/JoyZhuoz/CareLink-sub000/internal/lockfile"
	"github.com/JoyZhuoz/CareLink-sub000/internal/store"
	"github.com/JoyZhuoz/CareLink-sub000/internal/telephony"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CareLink state data
	DefaultStateDir = "/var/lib/carelink"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "carelink.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Sessions are held in memory, so only one instance may own a state directory.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	telephonyOpts := buildTelephonyOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping CareLink with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "telephony", len(telephonyOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, telephonyOpts, apiOpts); err != nil {
		slog.Error("CareLink failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CareLink exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	BaseURL     string
	PolicyFile  string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
	DefaultCron string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	baseURL     *string
	policyFile  *string
	twilioSID   *string
	twilioToken *string
	twilioFrom  *string
	defaultCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("CARELINK_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		BaseURL:     os.Getenv("PUBLIC_BASE_URL"),
		PolicyFile:  os.Getenv("CARELINK_POLICY_FILE"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
		DefaultCron: os.Getenv("DEFAULT_SCHEDULE"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CARELINK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CARELINK_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"PUBLIC_BASE_URL", config.BaseURL,
		"CARELINK_POLICY_FILE", config.PolicyFile,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"DEFAULT_SCHEDULE", config.DefaultCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for CareLink data (overrides $CARELINK_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the patient store (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		baseURL:     flag.String("base-url", config.BaseURL, "public base URL for Twilio webhooks (overrides $PUBLIC_BASE_URL)"),
		policyFile:  flag.String("policy-file", config.PolicyFile, "YAML triage policy file (overrides $CARELINK_POLICY_FILE)"),
		twilioSID:   flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken: flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:  flag.String("twilio-from", config.TwilioFrom, "Twilio caller ID number (overrides $TWILIO_FROM_NUMBER)"),
		defaultCron: flag.String("default-cron", config.DefaultCron, "default cron schedule for check-ins (overrides $DEFAULT_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"baseURL", *flags.baseURL,
		"policyFile", *flags.policyFile,
		"defaultCron", *flags.defaultCron)

	return flags
}

// buildStoreOptions builds store options from flags
func buildStoreOptions(flags Flags) []store.Option {
	var opts []store.Option
	if *flags.dbDSN != "" {
		opts = append(opts, store.WithDSN(*flags.dbDSN))
	}
	return opts
}

// buildGenAIOptions builds GenAI options from flags
func buildGenAIOptions(flags Flags) []genai.Option {
	var opts []genai.Option
	if *flags.openaiKey != "" {
		opts = append(opts, genai.WithAPIKey(*flags.openaiKey))
	}
	return opts
}

// buildTelephonyOptions builds telephony options from flags
func buildTelephonyOptions(flags Flags) []telephony.Option {
	var opts []telephony.Option
	if *flags.twilioSID != "" {
		opts = append(opts, telephony.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		opts = append(opts, telephony.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		opts = append(opts, telephony.WithFromNumber(*flags.twilioFrom))
	}
	return opts
}

// buildAPIOptions builds API server options from flags
func buildAPIOptions(flags Flags) []api.Option {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.baseURL != "" {
		opts = append(opts, api.WithBaseURL(*flags.baseURL))
	}
	if *flags.policyFile != "" {
		opts = append(opts, api.WithPolicyFile(*flags.policyFile))
	}
	if *flags.defaultCron != "" {
		opts = append(opts, api.WithDefaultCron(*flags.defaultCron))
	}
	return opts
}
