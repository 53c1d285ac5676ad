package attendance

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noRowsDriver answers every exec with driver.ResultNoRows, whose
// RowsAffected always errors. Covers update paths against drivers that
// cannot report affected rows.
type noRowsDriver struct{}

func (noRowsDriver) Open(string) (driver.Conn, error) { return noRowsConn{}, nil }

type noRowsConn struct{}

func (noRowsConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (noRowsConn) Close() error                        { return nil }
func (noRowsConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

func (noRowsConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return driver.ResultNoRows, nil
}

func init() {
	sql.Register("attendance-norows", noRowsDriver{})
}

func TestSetSessionActiveRowsAffectedError(t *testing.T) {
	db, err := sql.Open("attendance-norows", "")
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	err = repo.SetSessionActive(context.Background(), "S1", false)

	// surfaced as a store error, not mistaken for success or a missing session
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
