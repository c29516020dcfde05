package services

import (
	"context"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	ExportVersion = "1.0"
	ExportSystem  = "Wikits"
)

type ExportMetadata struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	ExportedBy string    `json:"exportedBy"`
	System     string    `json:"system"`
}

type ExportData struct {
	Topics        []models.Topic        `json:"topics"`
	Chapters      []models.Chapter      `json:"chapters"`
	Relationships []models.Relationship `json:"relationships"`
	Threads       []models.Thread       `json:"threads"`
	Posts         []models.Post         `json:"posts"`
}

type Export struct {
	Metadata ExportMetadata `json:"metadata"`
	Data     ExportData     `json:"data"`
}

type ActivityExport struct {
	Metadata ExportMetadata `json:"metadata"`
	Data     struct {
		Events []models.Event `json:"events"`
	} `json:"data"`
}

type ExportService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExportService(db *gorm.DB, baseLog *logger.Logger) *ExportService {
	return &ExportService{db: db, log: baseLog.With("service", "ExportService")}
}

func newExportMetadata(adminID string) ExportMetadata {
	return ExportMetadata{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		ExportedBy: adminID,
		System:     ExportSystem,
	}
}

// Export 并行读取各表，生成完整数据快照
func (s *ExportService) Export(ctx context.Context, adminID string) (*Export, error) {
	out := &Export{Metadata: newExportMetadata(adminID)}
	d := &out.Data
	d.Topics, d.Chapters, d.Relationships = []models.Topic{}, []models.Chapter{}, []models.Relationship{}
	d.Threads, d.Posts = []models.Thread{}, []models.Post{}

	g, gctx := errgroup.WithContext(ctx)
	conn := func() *gorm.DB { return s.db.WithContext(gctx) }
	g.Go(func() error { return conn().Order("id ASC").Find(&d.Topics).Error })
	g.Go(func() error { return conn().Order("id ASC").Find(&d.Chapters).Error })
	g.Go(func() error { return conn().Order("id ASC").Find(&d.Relationships).Error })
	g.Go(func() error { return conn().Preload("Tags").Order("id ASC").Find(&d.Threads).Error })
	g.Go(func() error { return conn().Order("id ASC").Find(&d.Posts).Error })
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal(err)
	}

	s.log.Info("Data exported", "admin_id", adminID, "topics", len(d.Topics), "threads", len(d.Threads))
	return out, nil
}

func (s *ExportService) ExportActivity(ctx context.Context, adminID string, since time.Time) (*ActivityExport, error) {
	out := &ActivityExport{Metadata: newExportMetadata(adminID)}
	out.Data.Events = []models.Event{}
	q := s.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if err := q.Find(&out.Data.Events).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}
