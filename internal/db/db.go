package db

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
	"wikits/internal/logger"
	"wikits/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Models 需要自动迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.SystemSetting{},
		&models.Event{},
		&models.Topic{},
		&models.Chapter{},
		&models.Relationship{},
		&models.FAQ{},
		&models.Tag{},
		&models.Thread{},
		&models.Post{},
		&models.ThreadVote{},
		&models.Campaign{},
		&models.AdEvent{},
		&models.Transaction{},
	}
}

// newGormLogger 只输出慢查询与真正的错误；未命中是正常路径（默认设置、主题桩）
func newGormLogger(w io.Writer) gormlogger.Interface {
	return gormlogger.New(
		log.New(w, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Open 连接数据库并执行迁移。dsn 以 sqlite:// 开头时使用 SQLite（本地开发与测试）
func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isSQLite := strings.HasPrefix(dsn, sqlitePrefix)
	if isSQLite {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	} else {
		dialector = postgres.Open(dsn)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(os.Stdout),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if isSQLite {
		// SQLite 单连接，避免内存库在多连接间不可见以及写锁冲突
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := conn.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return conn, nil
}

// Init 连接数据库，失败直接退出
func Init(dsn string, log *logger.Logger) *gorm.DB {
	conn, err := Open(dsn)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}
	log.Info("Database connection established", "dialect", conn.Dialector.Name())
	return conn
}

// IsPostgres 判断当前连接方言，用于少量方言相关的原生 SQL
func IsPostgres(conn *gorm.DB) bool {
	return conn.Dialector.Name() == "postgres"
}
