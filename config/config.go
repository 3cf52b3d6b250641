/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_POLL_INTERVAL_MS  = 2000
	DEFAULT_LOCK_TIMEOUT_MS   = 30000
	DEFAULT_MONITORING_PORT   = "5004"
	DEFAULT_PG_HOST           = "localhost"
	DEFAULT_PG_PORT           = "5432"
	DEFAULT_PG_DATABASE       = "payments"
	DEFAULT_PG_USER           = "postgres"
	DEFAULT_PG_PASSWORD       = "postgres"
	DEFAULT_PG_SSL_MODE       = "disable"
	DEFAULT_MAX_OPEN_CONNS    = 10
	DEFAULT_MAX_IDLE_CONNS    = 5
	DEFAULT_CONN_MAX_LIFETIME = 30 * time.Minute

	LedgerLockAdvisory = "advisory"
	LedgerLockRedis    = "redis"
)

var ConfigStore atomic.Value

// DataSourceConfig holds the Postgres connection parameters. Dns, when set,
// takes precedence over the individual PG* parameters.
type DataSourceConfig struct {
	Dns          string `json:"dns" envconfig:"RECON_DATA_SOURCE_DNS"`
	Host         string `json:"host" envconfig:"PGHOST"`
	Port         string `json:"port" envconfig:"PGPORT"`
	Database     string `json:"database" envconfig:"PGDATABASE"`
	User         string `json:"user" envconfig:"PGUSER"`
	Password     string `json:"-" envconfig:"PGPASSWORD"`
	SSLMode      string `json:"ssl_mode" envconfig:"PGSSLMODE"`
	MaxOpenConns int    `json:"max_open_conns" envconfig:"RECON_DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `json:"max_idle_conns" envconfig:"RECON_DB_MAX_IDLE_CONNS"`
}

// ConnectionString returns the DSN handed to the postgres driver.
func (d DataSourceConfig) ConnectionString() string {
	if d.Dns != "" {
		return d.Dns
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"RECON_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"RECON_REDIS_SKIP_TLS_VERIFY"`
}

type WorkerConfig struct {
	ID             string `json:"id" envconfig:"RECON_WORKER_ID"`
	PollIntervalMs int    `json:"poll_interval_ms" envconfig:"RECON_POLL_INTERVAL_MS"`
	LockTimeoutMs  int    `json:"lock_timeout_ms" envconfig:"RECON_LOCK_TIMEOUT_MS"`
	LedgerLock     string `json:"ledger_lock" envconfig:"RECON_LEDGER_LOCK"`
	MonitoringPort string `json:"monitoring_port" envconfig:"RECON_MONITORING_PORT"`

	// MonitoringSecret guards the mutating monitoring endpoints when set.
	MonitoringSecret string `json:"-" envconfig:"RECON_MONITORING_SECRET"`

	// ListenNotifications wakes the poller on recon_jobs notifications in addition
	// to the fixed poll interval.
	ListenNotifications bool `json:"listen_notifications" envconfig:"RECON_LISTEN_NOTIFICATIONS"`
}

// PollInterval is the fixed interval between claim attempts.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

// LockTimeout is the age after which a processing claim may be reclaimed.
func (w WorkerConfig) LockTimeout() time.Duration {
	return time.Duration(w.LockTimeoutMs) * time.Millisecond
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"RECON_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"RECON_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"RECON_ENABLE_TELEMETRY"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Worker          WorkerConfig     `json:"worker"`
	Notification    Notification     `json:"notification"`
}

// DefaultWorkerID derives the process-unique worker identity used to tag
// claimed rows.
func DefaultWorkerID() string {
	return fmt.Sprintf("worker-%d", os.Getpid())
}

func loadConfigFromEnv() error {
	var cnf Configuration

	err := envconfig.Process("recon", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

// InitConfig loads the configuration from the environment. There is no file
// based configuration for the worker.
func InitConfig() error {
	logger()
	return loadConfigFromEnv()
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded. Call config.InitConfig before fetching ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Recon Worker"
	}

	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.DataSource.Host = strings.TrimSpace(cnf.DataSource.Host)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Worker.ID = strings.TrimSpace(cnf.Worker.ID)
	cnf.Worker.LedgerLock = strings.ToLower(strings.TrimSpace(cnf.Worker.LedgerLock))

	if cnf.DataSource.Host == "" {
		cnf.DataSource.Host = DEFAULT_PG_HOST
	}
	if cnf.DataSource.Port == "" {
		cnf.DataSource.Port = DEFAULT_PG_PORT
	}
	if cnf.DataSource.Database == "" {
		cnf.DataSource.Database = DEFAULT_PG_DATABASE
	}
	if cnf.DataSource.User == "" {
		cnf.DataSource.User = DEFAULT_PG_USER
	}
	if cnf.DataSource.Password == "" {
		cnf.DataSource.Password = DEFAULT_PG_PASSWORD
	}
	if cnf.DataSource.SSLMode == "" {
		cnf.DataSource.SSLMode = DEFAULT_PG_SSL_MODE
	}
	if cnf.DataSource.MaxOpenConns <= 0 {
		cnf.DataSource.MaxOpenConns = DEFAULT_MAX_OPEN_CONNS
	}
	if cnf.DataSource.MaxIdleConns <= 0 {
		cnf.DataSource.MaxIdleConns = DEFAULT_MAX_IDLE_CONNS
	}

	if cnf.Worker.ID == "" {
		cnf.Worker.ID = DefaultWorkerID()
	}
	if cnf.Worker.PollIntervalMs == 0 {
		cnf.Worker.PollIntervalMs = DEFAULT_POLL_INTERVAL_MS
	}
	if cnf.Worker.LockTimeoutMs == 0 {
		cnf.Worker.LockTimeoutMs = DEFAULT_LOCK_TIMEOUT_MS
	}
	if cnf.Worker.LedgerLock == "" {
		cnf.Worker.LedgerLock = LedgerLockAdvisory
	}
	if cnf.Worker.MonitoringPort == "" {
		cnf.Worker.MonitoringPort = DEFAULT_MONITORING_PORT
		log.Printf("Warning: monitoring port not specified. Setting default port: %s", DEFAULT_MONITORING_PORT)
	}

	err := validation.ValidateStruct(&cnf.Worker,
		validation.Field(&cnf.Worker.PollIntervalMs, validation.Min(1).Error("poll interval must be positive")),
		validation.Field(&cnf.Worker.LockTimeoutMs, validation.Min(1).Error("lock timeout must be positive")),
		validation.Field(&cnf.Worker.LedgerLock, validation.In(LedgerLockAdvisory, LedgerLockRedis)),
	)
	if err != nil {
		return fmt.Errorf("invalid worker config: %w", err)
	}

	if cnf.Worker.LedgerLock == LedgerLockRedis && cnf.Redis.Dns == "" {
		return errors.New("redis DNS is required when ledger lock is redis")
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
