package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sqlDB  *sql.DB
	mock   sqlmock.Sqlmock
	gormDB *gorm.DB
)

func setUp() {
	sqlDB, mock, _ = sqlmock.New()
	gormDB, _ = gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

func tearDown() {
	sqlDB.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func TestIncrementIsASingleAtomicUpdate(t *testing.T) {
	it(func() {
		mock.ExpectExec("UPDATE `users` SET `points`=points \\+ \\? WHERE .*id = \\?.*active = \\?").
			WithArgs(15, sqlmock.AnyArg(), true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT `id`,`points`,`level` FROM `users`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "points", "level"}).AddRow(7, 115, 1))

		u, err := NewPointsRepository(gormDB).Increment(context.Background(), 7, 15)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if u.Points != 115 || u.Level != 1 {
			t.Errorf("got points=%d level=%d, want 115 and 1", u.Points, u.Level)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestIncrementInactiveUser(t *testing.T) {
	it(func() {
		mock.ExpectExec("UPDATE `users` SET `points`=points \\+ \\?").
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := NewPointsRepository(gormDB).Increment(context.Background(), 7, 10)
		if !errors.Is(err, ErrUserInactive) {
			t.Errorf("expected ErrUserInactive, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestIncrementPropagatesDriverErrors(t *testing.T) {
	it(func() {
		mock.ExpectExec("UPDATE `users`").WillReturnError(errors.New("connection reset"))

		if _, err := NewPointsRepository(gormDB).Increment(context.Background(), 7, 10); err == nil {
			t.Error("expected driver error")
		}
	})
}
