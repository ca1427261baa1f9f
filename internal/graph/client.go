package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

// Client implements session.Driver for Neo4j. It must be connected via
// Connect before use and closed with Close.
type Client struct {
	config Config
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Neo4j client with the given configuration.
func NewClient(config Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ session.Driver = (*Client)(nil)

// Connect creates the driver and verifies connectivity once. A failure is
// returned to the caller; there is no retry loop.
func (c *Client) Connect(ctx context.Context) error {
	auth := neo4j.NoAuth()
	if c.config.Username != "" {
		auth = neo4j.BasicAuth(c.config.Username, c.config.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(c.config.URI, auth, func(cfg *neo4j.Config) {
		if c.config.MaxConnectionPoolSize > 0 {
			cfg.MaxConnectionPoolSize = c.config.MaxConnectionPoolSize
		}
		cfg.ConnectionAcquisitionTimeout = c.config.ConnectionTimeout
	})
	if err != nil {
		return types.WrapError(types.ErrCodeConnectivity, "failed to create driver", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return types.WrapError(types.ErrCodeConnectivity,
			fmt.Sprintf("failed to connect to %s", c.config.URI), err)
	}

	c.driver = driver
	c.logger.InfoContext(ctx, "connected to neo4j", "uri", c.config.URI, "database", c.config.Database)
	return nil
}

// Close releases all resources and closes the database connection.
func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}

	if err := c.driver.Close(ctx); err != nil {
		return types.WrapError(types.ErrCodeConnectivity, "failed to close driver", err)
	}

	c.driver = nil
	return nil
}

// Health returns the current health status of the Neo4j connection.
func (c *Client) Health(ctx context.Context) types.HealthStatus {
	if c.driver == nil {
		return types.Unhealthy("driver not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := c.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}

	status := types.Healthy("connected to Neo4j")
	status.Latency = time.Since(start)
	return status
}

// Database returns the configured database name.
func (c *Client) Database() string {
	return c.config.Database
}

// NewSession implements session.Driver.
func (c *Client) NewSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	if c.driver == nil {
		return nil, types.NewError(types.ErrCodeConnectivity, "driver not connected")
	}

	db := cfg.Database
	if db == "" {
		db = c.config.Database
	}
	mode := neo4j.AccessModeWrite
	if cfg.AccessMode == session.AccessModeRead {
		mode = neo4j.AccessModeRead
	}

	return &neoSession{
		session: c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: db, AccessMode: mode}),
	}, nil
}

type neoSession struct {
	session neo4j.SessionWithContext
}

func (s *neoSession) Run(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
	res, err := s.session.Run(ctx, text, params)
	if err != nil {
		return nil, classifyError(err, "statement failed")
	}
	return collect(ctx, res)
}

func (s *neoSession) BeginTransaction(ctx context.Context) (session.Transaction, error) {
	tx, err := s.session.BeginTransaction(ctx)
	if err != nil {
		return nil, classifyError(err, "failed to begin transaction")
	}
	return &neoTx{tx: tx}, nil
}

func (s *neoSession) Close(ctx context.Context) error {
	return classifyError(s.session.Close(ctx), "failed to close session")
}

type neoTx struct {
	tx neo4j.ExplicitTransaction
}

func (t *neoTx) Run(ctx context.Context, text string, params map[string]any) (*session.Result, error) {
	res, err := t.tx.Run(ctx, text, params)
	if err != nil {
		return nil, classifyError(err, "statement failed")
	}
	return collect(ctx, res)
}

func (t *neoTx) Commit(ctx context.Context) error {
	return classifyError(t.tx.Commit(ctx), "commit failed")
}

func (t *neoTx) Rollback(ctx context.Context) error {
	return classifyError(t.tx.Rollback(ctx), "rollback failed")
}

// collect drains a result into records with driver types converted.
func collect(ctx context.Context, res neo4j.ResultWithContext) (*session.Result, error) {
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, classifyError(err, "failed to collect results")
	}
	summary, err := res.Consume(ctx)
	if err != nil {
		return nil, classifyError(err, "failed to consume results")
	}

	out := &session.Result{Records: make([]session.Record, 0, len(records))}
	for _, rec := range records {
		row := make(session.Record, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = convertValue(rec.Values[i])
		}
		out.Records = append(out.Records, row)
	}

	if summary != nil {
		counters := summary.Counters()
		out.Summary = session.Summary{
			NodesCreated:         counters.NodesCreated(),
			NodesDeleted:         counters.NodesDeleted(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			RelationshipsDeleted: counters.RelationshipsDeleted(),
			PropertiesSet:        counters.PropertiesSet(),
		}
	}
	return out, nil
}
