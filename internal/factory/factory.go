package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/prometheus/client_golang/prometheus"

	"buddiesfinder/internal/audit"
	"buddiesfinder/internal/bucketing"
	"buddiesfinder/internal/client"
	"buddiesfinder/internal/config"
	"buddiesfinder/internal/encryption"
	"buddiesfinder/internal/handler"
	"buddiesfinder/internal/hashing"
	"buddiesfinder/internal/mail"
	"buddiesfinder/internal/metrics"
	"buddiesfinder/internal/models"
	"buddiesfinder/internal/repository/postgres"
	rediscache "buddiesfinder/internal/repository/redis"
	"buddiesfinder/internal/repository/scylla"
	"buddiesfinder/internal/search"
	"buddiesfinder/internal/security"
	"buddiesfinder/internal/service"
	"buddiesfinder/internal/tls"
	"buddiesfinder/internal/tokens"
	"buddiesfinder/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients; the optional ones stay nil when not configured
	postgresClient   *client.PostgresClient
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	recorder          *audit.Recorder

	accounts       *postgres.AccountRepository
	policy         security.Policy
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory loads configuration and connects every configured backend.
func NewFactory(ctx context.Context) (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		policy: security.Policy{
			FailureThreshold: cfg.Security.FailureThreshold,
			FailureWindow:    cfg.Security.FailureWindow,
			LockDuration:     cfg.Security.LockDuration,
			AbsoluteTimeout:  cfg.Security.AbsoluteTimeout,
			IdleTimeout:      cfg.Security.IdleTimeout,
		},
	}

	if cfg.Server.EnableTLS {
		if f.tlsManager, err = tls.NewManager(cfg); err != nil {
			return nil, err
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := f.initializeClients(initCtx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(initCtx, f.postgresClient.Pool); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.initializeManagers(initCtx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	metrics.MustRegister(prometheus.DefaultRegisterer)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Any("audit_sinks", f.recorder.Sinks()),
	)
	return f, nil
}

// initializeClients connects Postgres and Redis, which are required, and
// the optional backends that have an address configured. Outside production
// an optional backend that fails to connect is skipped with a warning.
func (f *Factory) initializeClients(ctx context.Context) error {
	var err error
	if f.postgresClient, err = client.NewPostgresClient(ctx, f.config); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if f.redisClient, err = client.NewRedisClient(f.config); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	var optional []error
	if len(f.config.Scylla.Nodes) > 0 {
		if f.scyllaClient, err = scylla.NewScyllaClient(f.config); err != nil {
			optional = append(optional, fmt.Errorf("scylla: %w", err))
		}
	}
	if len(f.config.Kafka.Brokers) > 0 {
		if f.kafkaProducer, err = client.NewKafkaProducer(f.config); err != nil {
			optional = append(optional, fmt.Errorf("kafka: %w", err))
		}
	}
	if f.config.Elasticsearch.URL != "" {
		if f.esClient, err = client.NewElasticsearchClient(f.config); err == nil {
			err = f.esClient.HealthCheck(ctx)
		}
		if err != nil {
			f.esClient = nil
			optional = append(optional, fmt.Errorf("elasticsearch: %w", err))
		}
	}
	if f.config.Clickhouse.URL != "" {
		if f.clickhouseClient, err = client.NewClickHouseClient(f.config); err != nil {
			optional = append(optional, fmt.Errorf("clickhouse: %w", err))
		}
	}

	if len(optional) > 0 {
		if f.config.IsProduction() {
			return errors.Join(optional...)
		}
		for _, err := range optional {
			util.Warn("Optional backend unavailable, continuing without it", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeManagers(ctx context.Context) error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		f.encryptionManager = encryption.NewKMSManager(kms.NewFromConfig(awsCfg), f.config.KMS.KeyID)
	} else {
		manager, generated, err := encryption.NewLocalManagerFromBase64(f.config.KMS.LocalKey)
		if err != nil {
			return err
		}
		if generated {
			util.Warn("LOCAL_MASTER_KEY not set; OTP secrets sealed now will not open after a restart")
		}
		f.encryptionManager = manager
	}

	var sinks []audit.Sink
	if f.scyllaClient != nil {
		sinks = append(sinks, scylla.NewSecurityEventRepository(f.scyllaClient))
	}
	if f.clickhouseClient != nil {
		sink, err := audit.NewClickHouseSink(ctx, f.clickhouseClient)
		if err != nil {
			if f.config.IsProduction() {
				return err
			}
			util.Warn("ClickHouse audit sink disabled", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if f.kafkaProducer != nil {
		sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.SecurityTopic))
	}
	f.recorder = audit.NewRecorder(f.bucketingManager, util.Named("audit"), sinks...)

	f.accounts = postgres.NewAccountRepository(f.postgresClient.DB, f.encryptionManager)
	return nil
}

// ServiceFactory wires the stores, guard and collaborators into the
// services.
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory != nil {
		return f.serviceFactory
	}
	db := f.postgresClient.DB
	cfg := f.config

	ledger := postgres.NewFailedLoginRepository(db)
	codes := security.NewTOTP(cfg.Security.OTPIssuer)
	guard := security.NewGuard(f.accounts, ledger, f.hasher, codes, f.policy, util.Named("guard")).
		OnLock(f.recordLock)

	var mailer mail.Mailer = mail.NewLogMailer(util.Named("mail"))
	if f.kafkaProducer != nil {
		mailer = mail.NewKafkaMailer(f.kafkaProducer, cfg.Kafka.MailTopic)
	}

	var docs search.DocumentStore
	if f.esClient != nil {
		docs = f.esClient
	}

	deps := service.Dependencies{
		Accounts:   f.accounts,
		Ledger:     ledger,
		Resets:     postgres.NewPasswordResetRepository(db),
		Activities: postgres.NewActivityRepository(db),
		Posts:      postgres.NewPostRepository(db),
		Guard:      guard,
		Hasher:     f.hasher,
		Tokens:     tokens.NewEmailTokens(cfg.Security.EmailTokenSecret, cfg.Security.EmailTokenTTL),
		OTP:        codes,
		Mailer:     mailer,
		Composer:   mail.Composer{From: cfg.Mail.From, BaseURL: cfg.Mail.BaseURL},
		Limiter:    rediscache.NewRateLimitCache(f.redisClient),
		Search:     search.NewUserIndex(docs, cfg.Elasticsearch.UserIndex, f.accounts, util.Named("search")),
		Audit:      f.recorder,
		Reset: service.ResetPolicy{
			TokenTTL:      cfg.Security.ResetTokenTTL,
			RequestLimit:  cfg.Security.ResetRequestLimit,
			RequestWindow: cfg.Security.ResetRequestWindow,
		},
		Logger: util.Get(),
	}
	if f.scyllaClient != nil {
		deps.History = scylla.NewSecurityEventRepository(f.scyllaClient)
	}

	f.serviceFactory = service.NewServiceFactory(deps)
	return f.serviceFactory
}

func (f *Factory) recordLock(ctx context.Context, account *models.Account, factor security.Factor, until time.Time) {
	metrics.AccountLocksTotal.WithLabelValues(string(factor)).Inc()
	f.recorder.Record(ctx, models.SecurityEvent{
		EventType: models.EventAccountLocked,
		UserID:    account.ID,
		Email:     account.Email,
		Factor:    string(factor),
		Reason:    "locked until " + until.UTC().Format(time.RFC3339),
	})
}

// Sessions builds the cookie-to-snapshot binding used by the router.
func (f *Factory) Sessions() *handler.Sessions {
	return handler.NewSessions(
		rediscache.NewSessionCache(f.redisClient, f.policy.AbsoluteTimeout),
		security.NewGate(f.accounts, f.policy, util.Named("gate")),
		handler.CookieConfig{
			Name:   f.config.Security.SessionCookieName,
			Secure: f.config.Security.CookieSecure || f.config.Server.EnableTLS,
			MaxAge: f.policy.AbsoluteTimeout,
		},
		util.Named("session"),
	)
}

// HealthChecks lists every connected backend for /health.
func (f *Factory) HealthChecks() []handler.HealthCheck {
	checks := []handler.HealthCheck{
		{Name: "postgres", Check: f.postgresClient.HealthCheck},
		{Name: "redis", Check: f.redisClient.HealthCheck},
	}
	if f.scyllaClient != nil {
		checks = append(checks, handler.HealthCheck{Name: "scylla", Check: f.scyllaClient.HealthCheck})
	}
	if f.kafkaProducer != nil {
		checks = append(checks, handler.HealthCheck{Name: "kafka", Check: f.kafkaProducer.HealthCheck})
	}
	if f.esClient != nil {
		checks = append(checks, handler.HealthCheck{Name: "elasticsearch", Check: f.esClient.HealthCheck})
	}
	if f.clickhouseClient != nil {
		checks = append(checks, handler.HealthCheck{Name: "clickhouse", Check: f.clickhouseClient.HealthCheck})
	}
	return checks
}

func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			_ = f.redisClient.Close()
		}
		if f.postgresClient != nil {
			if err := f.postgresClient.Close(); err != nil {
				util.Error("Failed to close Postgres client", util.ErrorField(err))
			}
		}
		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}
