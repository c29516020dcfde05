package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(&buf)
	sql := func() (string, int64) { return "SELECT * FROM topics WHERE slug = 'missing'", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found logged: %q", buf.String())
	}
	l.Trace(context.Background(), time.Now(), sql, errors.New("connection reset"))
	if !strings.Contains(buf.String(), "connection reset") {
		t.Fatalf("real error not logged: %q", buf.String())
	}
}

func TestOpenSQLiteMigrates(t *testing.T) {
	conn, err := Open(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if IsPostgres(conn) {
		t.Fatalf("IsPostgres: want false for sqlite")
	}
	for _, m := range Models() {
		if !conn.Migrator().HasTable(m) {
			t.Fatalf("table missing for %T", m)
		}
	}
}
