package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"enrollment-reconciler/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() config.MySQLConfig {
	return config.MySQLConfig{
		Host:           "db.internal",
		Port:           3306,
		User:           "wordpress",
		Password:       "secret",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    20 * time.Second,
	}
}

func TestMySQLProvider_DSN(t *testing.T) {
	p := NewMySQLProvider(testServer(), nil)
	dsn := p.DSN("wp_pf")

	assert.Contains(t, dsn, "wordpress:secret@tcp(db.internal:3306)/wp_pf?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "timeout=5s")
	assert.Contains(t, dsn, "readTimeout=20s")
}

func TestMySQLProvider_ReusesLiveConnection(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectPing()

	opens := 0
	p := NewMySQLProviderWithOpener(testServer(), nil, func(string) (*sql.DB, error) {
		opens++
		return conn, nil
	})

	first, err := p.Acquire(context.Background(), "wp_pf")
	require.NoError(t, err)
	second, err := p.Acquire(context.Background(), "wp_pf")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, opens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLProvider_ReopensAfterFailedPing(t *testing.T) {
	stale, staleMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	staleMock.ExpectPing()
	staleMock.ExpectPing().WillReturnError(errors.New("server has gone away"))
	staleMock.ExpectClose()

	fresh, freshMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	freshMock.ExpectPing()

	handles := []*sql.DB{stale, fresh}
	p := NewMySQLProviderWithOpener(testServer(), nil, func(string) (*sql.DB, error) {
		h := handles[0]
		handles = handles[1:]
		return h, nil
	})

	_, err = p.Acquire(context.Background(), "wp_pf")
	require.NoError(t, err)
	got, err := p.Acquire(context.Background(), "wp_pf")
	require.NoError(t, err)

	assert.Same(t, fresh, got)
	assert.NoError(t, staleMock.ExpectationsWereMet())
	assert.NoError(t, freshMock.ExpectationsWereMet())
}

func TestMySQLProvider_Unreachable(t *testing.T) {
	p := NewMySQLProviderWithOpener(testServer(), nil, func(string) (*sql.DB, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	_, err := p.Acquire(context.Background(), "wp_pf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))

	_, err = p.Acquire(context.Background(), "")
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestMySQLProvider_PingFailureOnOpen(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("access denied"))
	mock.ExpectClose()

	p := NewMySQLProviderWithOpener(testServer(), nil, func(string) (*sql.DB, error) { return conn, nil })
	_, err = p.Acquire(context.Background(), "wp_pf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.Contains(t, err.Error(), "access denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}
