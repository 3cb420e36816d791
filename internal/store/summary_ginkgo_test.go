package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var summaryColumns = []string{
	"short_code", "date", "total_clicks", "unique_visitors",
	"top_countries", "top_referrers", "device_breakdown", "browser_breakdown",
	"hourly_distribution", "peak_hour", "avg_clicks_per_hour",
}

var _ = Describe("Store summary repository", func() {
	var (
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		s      *Store
		ctx    context.Context
		date   time.Time
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).NotTo(HaveOccurred())

		s = &Store{db: sqlx.NewDb(mockDB, "postgres")}
		ctx = context.Background()
		date = time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		mockDB.Close()
	})

	Describe("UpsertSummaryHour", func() {
		It("starts a fresh row from zero on the first flush for a (code, date)", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT short_code, date, total_clicks`).
				WithArgs("abc1234", date).
				WillReturnError(sql.ErrNoRows)
			mock.ExpectExec(`INSERT INTO analytics_daily_summaries`).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			err := s.UpsertSummaryHour(ctx, "abc1234", date, 9, HourDelta{
				Clicks:    4,
				UniqueIPs: 3,
				Countries: map[string]int64{"US": 4},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("adds onto an existing row rather than overwriting it", func() {
			hourly, _ := json.Marshal([]struct {
				Hour   int   `json:"hour"`
				Clicks int64 `json:"clicks"`
			}{{Hour: 9, Clicks: 4}})
			countries, _ := json.Marshal([]struct {
				Name  string `json:"name"`
				Count int64  `json:"clicks"`
			}{{Name: "US", Count: 4}})

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT short_code, date, total_clicks`).
				WithArgs("abc1234", date).
				WillReturnRows(sqlmock.NewRows(summaryColumns).
					AddRow("abc1234", date, int64(4), int64(3), countries, []byte("[]"), []byte("[]"), []byte("[]"), hourly, 9, 4.0))
			// total 4+2=6, unique visitors max(3,1)=3, hour 9 holds 6 clicks
			// and is the only active hour, so peak 9 and average 6.
			mock.ExpectExec(`INSERT INTO analytics_daily_summaries`).
				WithArgs("abc1234", date, int64(6), int64(3), sqlmock.AnyArg(), sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 9, 6.0).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			err := s.UpsertSummaryHour(ctx, "abc1234", date, 9, HourDelta{
				Clicks:    2,
				UniqueIPs: 1,
				Countries: map[string]int64{"US": 2},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("GetSummary", func() {
		It("returns not-found when no row matches", func() {
			mock.ExpectQuery(`SELECT short_code, date, total_clicks`).
				WithArgs("missing", date).
				WillReturnError(sql.ErrNoRows)

			_, err := s.GetSummary(ctx, "missing", date)
			Expect(err).To(HaveOccurred())
		})
	})
})
