package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientOption configures Client.
type ClientOption func(*Config)

// Config holds connection settings.
type Config struct {
	Host           string
	Port           int
	Database       string
	User           string
	Password       string
	SSLMode        string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
}

// Client wraps a pgx connection pool.
type Client struct {
	pool   *pgxpool.Pool
	config *Config
}

// NewClient opens a pool and pings it.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := &Config{
		Host:           "localhost",
		Port:           5432,
		Database:       "secmaster",
		User:           "postgres",
		SSLMode:        "prefer",
		MinConns:       2,
		MaxConns:       10,
		ConnectTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(BuildConnString(*cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns

	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(cctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Client{pool: pool, config: cfg}, nil
}

// Pool returns the underlying pool.
func (c *Client) Pool() *pgxpool.Pool { return c.pool }

// Health pings the database.
func (c *Client) Health(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close closes the pool.
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// InitSchema executes DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, ddl []string) error {
	for i, stmt := range ddl {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema statement %d: %w", i, err)
		}
	}
	return nil
}

// WithHost sets host and port.
func WithHost(host string, port int) ClientOption {
	return func(c *Config) {
		c.Host = host
		c.Port = port
	}
}

// WithDatabase sets the database name.
func WithDatabase(db string) ClientOption {
	return func(c *Config) { c.Database = db }
}

// WithCredentials sets user and password.
func WithCredentials(user, password string) ClientOption {
	return func(c *Config) {
		c.User = user
		c.Password = password
	}
}

// WithSSLMode sets sslmode.
func WithSSLMode(mode string) ClientOption {
	return func(c *Config) { c.SSLMode = mode }
}

// WithPoolSize sets min and max pool connections.
func WithPoolSize(min, max int) ClientOption {
	return func(c *Config) {
		c.MinConns = int32(min)
		c.MaxConns = int32(max)
	}
}
