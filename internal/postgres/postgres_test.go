package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
)

type DBSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *DB
	ctx  context.Context
}

func TestDB(t *testing.T) {
	suite.Run(t, new(DBSuite))
}

func (s *DBSuite) SetupTest() {
	raw, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.mock = mock
	s.db = Wrap(sqlx.NewDb(raw, "postgres"), logger.NewNopLogger())
	s.ctx = context.Background()
}

func (s *DBSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *DBSuite) TestWithTxCommits() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec("UPDATE invoices").WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	err := s.db.WithTx(s.ctx, func(ctx context.Context) error {
		_, ok := GetTx(ctx)
		s.True(ok)
		_, err := s.db.GetQuerier(ctx).ExecContext(ctx, "UPDATE invoices SET attempts = attempts")
		return err
	})
	s.NoError(err)
}

func (s *DBSuite) TestWithTxRollsBackOnError() {
	s.mock.ExpectBegin()
	s.mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.db.WithTx(s.ctx, func(ctx context.Context) error { return boom })
	s.ErrorIs(err, boom)
}

func (s *DBSuite) TestNestedWithTxUsesSavepoint() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec("SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()

	err := s.db.WithTx(s.ctx, func(ctx context.Context) error {
		inner := s.db.WithTx(ctx, func(ctx context.Context) error {
			return errors.New("inner")
		})
		s.Error(inner)
		return nil
	})
	s.NoError(err)
}

func (s *DBSuite) TestCommitWithoutTx() {
	err := s.db.CommitTx(s.ctx)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *DBSuite) TestMigrateAppliesPending() {
	migrations, err := Migrations()
	s.Require().NoError(err)
	s.Require().Len(migrations, 2)
	s.Equal("001_create_invoices", migrations[0].Version)
	s.Equal("002_add_invoice_granted_at", migrations[1].Version)

	s.mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, m := range migrations {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery("SELECT EXISTS").WithArgs(m.Version).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		s.mock.ExpectExec(regexp.QuoteMeta(strings.Fields(m.SQL)[0] + " TABLE")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(m.Version).
			WillReturnResult(sqlmock.NewResult(0, 1))
		s.mock.ExpectCommit()
	}

	applied, err := s.db.Migrate(s.ctx)
	s.Require().NoError(err)
	s.Len(applied, len(migrations))
}

func (s *DBSuite) TestMigrateSkipsApplied() {
	migrations, err := Migrations()
	s.Require().NoError(err)

	s.mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, m := range migrations {
		s.mock.ExpectBegin()
		s.mock.ExpectQuery("SELECT EXISTS").WithArgs(m.Version).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		s.mock.ExpectCommit()
	}

	applied, err := s.db.Migrate(s.ctx)
	s.Require().NoError(err)
	s.Empty(applied)
}
