package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"enrollment-reconciler/internal/config"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// ErrUnreachable is returned when a logical database cannot be opened or pinged.
var ErrUnreachable = errors.New("database unreachable")

// Provider resolves a logical database name to a live, reusable handle.
// Callers treat an error as "skip this tenant", never as fatal for the run.
type Provider interface {
	Acquire(ctx context.Context, dbName string) (*sql.DB, error)
}

// OpenFunc opens a handle for a DSN. Tests replace it with sqlmock.
type OpenFunc func(dsn string) (*sql.DB, error)

// MySQLProvider caches one *sql.DB per database name on a single server.
// A cached handle is pinged on every Acquire and reopened when the ping fails.
type MySQLProvider struct {
	cfg  config.MySQLConfig
	open OpenFunc
	log  *zap.Logger

	mu    sync.Mutex
	conns map[string]*sql.DB
}

// NewMySQLProvider builds a provider for the given server section.
func NewMySQLProvider(cfg config.MySQLConfig, log *zap.Logger) *MySQLProvider {
	return NewMySQLProviderWithOpener(cfg, log, func(dsn string) (*sql.DB, error) {
		return sql.Open("mysql", dsn)
	})
}

func NewMySQLProviderWithOpener(cfg config.MySQLConfig, log *zap.Logger, open OpenFunc) *MySQLProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &MySQLProvider{cfg: cfg, open: open, log: log, conns: make(map[string]*sql.DB)}
}

// DSN formats the driver connection string for dbName.
func (p *MySQLProvider) DSN(dbName string) string {
	mc := mysql.NewConfig()
	mc.User = p.cfg.User
	mc.Passwd = p.cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	mc.DBName = dbName
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	mc.Timeout = p.cfg.ConnectTimeout
	mc.ReadTimeout = p.cfg.ReadTimeout
	mc.WriteTimeout = p.cfg.ReadTimeout
	return mc.FormatDSN()
}

func (p *MySQLProvider) Acquire(ctx context.Context, dbName string) (*sql.DB, error) {
	if dbName == "" {
		return nil, fmt.Errorf("%w: empty database name", ErrUnreachable)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[dbName]; ok {
		if err := conn.PingContext(ctx); err == nil {
			return conn, nil
		}
		p.log.Warn("cached connection failed ping, reopening", zap.String("db", dbName))
		_ = conn.Close()
		delete(p.conns, dbName)
	}

	conn, err := p.open(p.DSN(dbName))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnreachable, dbName, err)
	}
	if p.cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(p.cfg.MaxOpenConns)
	}
	if p.cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(p.cfg.MaxIdleConns)
	}
	if p.cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnreachable, dbName, err)
	}

	p.log.Debug("connection established", zap.String("db", dbName))
	p.conns[dbName] = conn
	return conn, nil
}

// Close releases every cached handle.
func (p *MySQLProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for name, conn := range p.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(p.conns, name)
	}
	return errors.Join(errs...)
}
