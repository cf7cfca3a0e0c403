package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"buddiesfinder/internal/config"
	"buddiesfinder/internal/util"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS security_events (
		event_date text,
		event_bucket int,
		event_time timestamp,
		event_id uuid,
		event_type text,
		user_id bigint,
		email text,
		reason text,
		factor text,
		ip_address text,
		user_agent text,
		request_id text,
		PRIMARY KEY ((event_date, event_bucket), event_time, event_id)
	) WITH CLUSTERING ORDER BY (event_time DESC, event_id ASC)
	AND default_time_to_live = 7776000`,
	`CREATE TABLE IF NOT EXISTS security_events_by_user (
		user_id bigint,
		event_time timestamp,
		event_id uuid,
		event_type text,
		reason text,
		ip_address text,
		PRIMARY KEY ((user_id), event_time, event_id)
	) WITH CLUSTERING ORDER BY (event_time DESC, event_id ASC)
	AND default_time_to_live = 7776000`,
}

// PreparedStatements holds statement text shared by the repositories. Each
// call builds its own query from Statement() since gocql queries are not
// safe to Bind concurrently.
type PreparedStatements struct {
	InsertEvent       *gocql.Query
	InsertEventByUser *gocql.Query
	EventsByUser      *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if cfg.IsProduction() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_TLS_CA_FILE", "/app/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_TLS_CERT_FILE", "/app/certs/scylla.pem"),
			KeyPath:                util.GetEnv("SCYLLA_TLS_KEY_FILE", "/app/certs/scylla.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.ensureSchema(); err != nil {
		session.Close()
		return nil, err
	}
	client.prepareStatements()

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) ensureSchema() error {
	for _, stmt := range schema {
		if err := s.Session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("failed to create scylla table: %w", err)
		}
	}
	return nil
}

func (s *ScyllaClient) prepareStatements() {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return
	}

	s.Prepared = &PreparedStatements{
		InsertEvent: s.Session.Query(`
			INSERT INTO security_events (
				event_date, event_bucket, event_time, event_id, event_type, user_id,
				email, reason, factor, ip_address, user_agent, request_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		InsertEventByUser: s.Session.Query(`
			INSERT INTO security_events_by_user (
				user_id, event_time, event_id, event_type, reason, ip_address
			) VALUES (?, ?, ?, ?, ?, ?)`),
		EventsByUser: s.Session.Query(`
			SELECT event_time, event_id, event_type, reason, ip_address
			FROM security_events_by_user WHERE user_id = ? LIMIT ?`),
	}
	s.isPrepared = true
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}
