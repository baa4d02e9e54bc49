// Package dbtest opens throwaway sqlite databases shaped like the service
// schema for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/pkg/db"
	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
)

// Open returns an isolated in-memory database with every model migrated. A
// single connection is used so every statement sees the same memory database;
// code under test must use the transaction handle it is given.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return conn
}

// Client wraps Open in the service's db client.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}

// SeedMember inserts a member with the given email.
func SeedMember(t testing.TB, conn *gorm.DB, email string) *models.Member {
	t.Helper()
	name := email
	if at := strings.Index(email, "@"); at > 0 {
		name = email[:at]
	}
	member := &models.Member{Name: name, Email: email}
	if err := conn.Create(member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member
}

// SeedDependent inserts a junior under memberID.
func SeedDependent(t testing.TB, conn *gorm.DB, memberID uuid.UUID, name string) *models.Dependent {
	t.Helper()
	dependent := &models.Dependent{MemberID: memberID, Name: name}
	if err := conn.Create(dependent).Error; err != nil {
		t.Fatalf("seed dependent: %v", err)
	}
	return dependent
}

// FixedClock returns a clock function frozen at ts.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
