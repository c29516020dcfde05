package services

import (
	"context"
	"math/rand"
	"strings"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"
	"wikits/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutlineNode 种子目录中的一个节点
type OutlineNode struct {
	Title    string        `json:"title"`
	Slug     string        `json:"slug,omitempty"`
	Icon     string        `json:"icon,omitempty"`
	Children []OutlineNode `json:"children,omitempty"`
}

// DefaultOutline 开发环境默认种子数据
var DefaultOutline = []OutlineNode{
	{Title: "Mathematics", Icon: "📐", Children: []OutlineNode{
		{Title: "Algebra"},
		{Title: "Geometry"},
		{Title: "Graph Theory", Children: []OutlineNode{
			{Title: "Shortest Paths"},
			{Title: "Network Flow"},
		}},
	}},
	{Title: "Computer Science", Icon: "💻", Children: []OutlineNode{
		{Title: "Algorithms"},
		{Title: "Databases"},
		{Title: "Distributed Systems"},
	}},
	{Title: "Natural Sciences", Icon: "🔬", Children: []OutlineNode{
		{Title: "Physics", Children: []OutlineNode{
			{Title: "Quantum Mechanics"},
		}},
		{Title: "Biology"},
	}},
	{Title: "Humanities", Icon: "🏛️", Children: []OutlineNode{
		{Title: "History"},
		{Title: "Philosophy"},
	}},
}

const DefaultThreadProbability = 0.7

type SeedOptions struct {
	// 每个节点附带讨论帖的概率
	ThreadProbability float64
	Rand              *rand.Rand
	AuthorID          string
	AuthorName        string
}

type SeedResult struct {
	Topics  int `json:"topics"`
	Threads int `json:"threads"`
}

type SeedService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSeedService(db *gorm.DB, baseLog *logger.Logger) *SeedService {
	return &SeedService{db: db, log: baseLog.With("service", "SeedService")}
}

// Seed 深度优先导入目录；slug 冲突时更新 title/parent/icon/order
func (s *SeedService) Seed(ctx context.Context, outline []OutlineNode, opts SeedOptions) (*SeedResult, error) {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.AuthorID == "" {
		opts.AuthorID = "system"
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "Wikits"
	}

	res := &SeedResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.seedLevel(tx, outline, nil, opts, res)
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	s.log.Info("Seed import finished", "topics", res.Topics, "threads", res.Threads)
	return res, nil
}

func (s *SeedService) seedLevel(tx *gorm.DB, nodes []OutlineNode, parentID *uint, opts SeedOptions, res *SeedResult) error {
	for i, n := range nodes {
		title := strings.TrimSpace(n.Title)
		slug := utils.Slugify(n.Slug)
		if slug == "" {
			slug = utils.Slugify(title)
		}
		if slug == "" {
			return apperr.Validation("outline node needs a title or slug", nil)
		}
		icon := n.Icon
		if icon == "" {
			icon = utils.PickIcon(opts.Rand)
		}

		row := models.Topic{Title: title, Slug: slug, ParentID: parentID, Icon: icon, Order: i}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "parent_id", "icon", "sort_order", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		// upsert 后重新读取，拿到已存在行的 ID
		topic, err := findTopicBySlug(tx, slug)
		if err != nil {
			return err
		}
		res.Topics++

		if opts.Rand.Float64() < opts.ThreadProbability {
			if err := seedThread(tx, topic, opts); err != nil {
				return err
			}
			res.Threads++
		}

		if len(n.Children) > 0 {
			if err := s.seedLevel(tx, n.Children, &topic.ID, opts, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedThread(tx *gorm.DB, topic *models.Topic, opts SeedOptions) error {
	thread := models.Thread{
		Title:      "Discussion: " + topic.Title,
		Category:   "general",
		TopicID:    &topic.ID,
		AuthorID:   opts.AuthorID,
		AuthorName: opts.AuthorName,
	}
	if err := tx.Create(&thread).Error; err != nil {
		return err
	}
	post := models.Post{
		ThreadID:   thread.ID,
		Content:    "Questions, corrections and further reading about **" + topic.Title + "** go here.",
		AuthorID:   opts.AuthorID,
		AuthorName: opts.AuthorName,
	}
	return tx.Create(&post).Error
}

// Reset 清空百科与论坛内容，用户、设置、广告与日志保留
func (s *SeedService) Reset(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM thread_tags").Error; err != nil {
			return err
		}
		for _, m := range []interface{}{
			&models.ThreadVote{},
			&models.Post{},
			&models.Thread{},
			&models.Tag{},
			&models.FAQ{},
			&models.Relationship{},
			&models.Chapter{},
			&models.Topic{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Internal(err)
	}
	s.log.Warn("Wiki and forum content wiped")
	return nil
}
