package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// DatabaseConfig describes the sync ledger connection.
type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DatabaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		User:            os.Getenv("DB_USER"),
		Password:        os.Getenv("DB_PASSWORD"),
		Host:            os.Getenv("DB_HOST"),
		Port:            os.Getenv("DB_PORT"),
		Name:            os.Getenv("DB_NAME"),
		MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
	}
}

// DSN builds the go-sql-driver DSN. A host under /cloudsql/ is dialed as a unix socket.
func (c DatabaseConfig) DSN() string {
	network, address := "tcp", fmt.Sprintf("%s:%s", c.Host, c.Port)
	if strings.HasPrefix(c.Host, "/cloudsql/") {
		network, address = "unix", c.Host
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?parseTime=true&loc=UTC", c.User, c.Password, network, address, c.Name)
}

// ConnectDatabaseWithRetry connects the sync ledger database and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	cfg := DatabaseConfigFromEnv()
	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(mysql.Open(cfg.DSN()), initConfig())
		if err == nil {
			applyPool(conn, cfg)
			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				logg.WithError(pluginErr).Warn("otelgorm plugin not installed")
			}
			if pluginErr := conn.Use(NewCompanyGuardPlugin()); pluginErr != nil {
				logg.WithError(pluginErr).Warn("company guard plugin not installed")
			}
			db = conn
			logg.WithFields(logrus.Fields{"host": cfg.Host, "database": cfg.Name, "attempt": attempt}).Info("ledger database connected")
			return
		}

		sleep := backoff(attempt)
		logg.WithFields(logrus.Fields{"host": cfg.Host, "attempt": attempt, "retry_in": sleep.String()}).
			WithError(err).Warn("ledger database connect failed")
		time.Sleep(sleep)
	}
}

func applyPool(conn *gorm.DB, cfg DatabaseConfig) {
	sqlDB, err := conn.DB()
	if err != nil || sqlDB == nil {
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// backoff doubles from 2s and caps at 30s.
func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: &schema.NamingStrategy{SingularTable: false},
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}
