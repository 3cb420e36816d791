package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store counter repository", func() {
	var (
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		s      *Store
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).NotTo(HaveOccurred())

		s = &Store{db: sqlx.NewDb(mockDB, "postgres")}
		ctx = context.Background()
	})

	AfterEach(func() {
		mockDB.Close()
	})

	Describe("ReserveRange", func() {
		It("initializes the counter row from seed when absent and returns it", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT current_value FROM id_counter`).
				WillReturnError(sql.ErrNoRows)
			mock.ExpectExec(`INSERT INTO id_counter`).
				WithArgs(int64(1_000_000)).
				WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectExec(`UPDATE id_counter`).
				WithArgs(int64(1_000_000 + 10_000)).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			start, err := s.ReserveRange(ctx, 1_000_000, 10_000)
			Expect(err).NotTo(HaveOccurred())
			Expect(start).To(Equal(int64(1_000_000)))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("advances the existing counter by rangeSize", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT current_value FROM id_counter`).
				WillReturnRows(sqlmock.NewRows([]string{"current_value"}).AddRow(int64(50_000)))
			mock.ExpectExec(`UPDATE id_counter`).
				WithArgs(int64(60_000)).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			start, err := s.ReserveRange(ctx, 1_000_000, 10_000)
			Expect(err).NotTo(HaveOccurred())
			Expect(start).To(Equal(int64(50_000)))
		})

		It("rolls back and returns a transient error when the row lock fails", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT current_value FROM id_counter`).
				WillReturnError(sql.ErrConnDone)
			mock.ExpectRollback()

			_, err := s.ReserveRange(ctx, 1_000_000, 10_000)
			Expect(err).To(HaveOccurred())
		})
	})
})
