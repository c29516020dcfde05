package services

import (
	"fmt"
	"testing"
	"wikits/internal/db"
	"wikits/internal/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func testLogger() *logger.Logger {
	return logger.NewNop()
}

func strPtr(s string) *string { return &s }
