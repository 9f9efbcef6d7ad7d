package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | inmem
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StripeConfig struct {
		SecretKey     string
		WebhookSecret string
		Currency      string
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	Config struct {
		Env               string
		Build             string
		Debug             bool
		TestMode          bool
		AppName           string
		SecretKey         string
		FrontendBaseURL   string
		ReconcileSchedule string
		RollbarToken      string
		SendgridApiKey    string
		Server            ServerConfig
		Database          DatabaseConfig
		Stripe            StripeConfig
		Redis             RedisConfig

		defaultFromEmail string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DefaultFromEmail parses the configured sender; it falls back to noreply@localhost.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// NewConfig reads the configuration of the current ENV (DEV by default).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "MoveUp")
	v.SetDefault("secretKey", "lq9-x1t)0zb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "MoveUp <noreply@localhost>")
	v.SetDefault("reconcileSchedule", "@every 15m")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "moveup")
	v.SetDefault("database.user", "moveup")
	v.SetDefault("database.password", "moveup")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("stripe.secretKey", "")
	v.SetDefault("stripe.webhookSecret", "")
	v.SetDefault("stripe.currency", "vnd")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:               env,
		Build:             v.GetString("build"),
		Debug:             v.GetBool("debug"),
		TestMode:          v.GetBool("testMode"),
		AppName:           v.GetString("appName"),
		SecretKey:         v.GetString("secretKey"),
		FrontendBaseURL:   strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		ReconcileSchedule: v.GetString("reconcileSchedule"),
		RollbarToken:      v.GetString("rollbarToken"),
		SendgridApiKey:    v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secretKey"),
			WebhookSecret: v.GetString("stripe.webhookSecret"),
			Currency:      strings.ToLower(v.GetString("stripe.currency")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
	return conf
}

// NewTestConfig returns a Config suitable for tests; it does not read the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:               "TEST",
		Build:             "test",
		TestMode:          true,
		AppName:           "MoveUp",
		SecretKey:         "secret",
		FrontendBaseURL:   "http://localhost:3000",
		ReconcileSchedule: "@every 15m",
		Server: ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "inmem"},
		Stripe: StripeConfig{
			SecretKey:     "sk_test_moveup",
			WebhookSecret: "whsec_test_moveup",
			Currency:      "vnd",
		},
		defaultFromEmail: "MoveUp <noreply@localhost>",
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s) env=%s debug=%t db=%s", c.AppName, c.Build, c.Env, c.Debug, c.Database.Engine)
}
