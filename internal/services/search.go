package services

import (
	"context"
	"strings"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"

	"gorm.io/gorm"
)

const searchLimit = 10

type SearchResults struct {
	Query   string          `json:"query"`
	Topics  []models.Topic  `json:"topics"`
	Threads []models.Thread `json:"threads"`
}

type SearchService struct {
	db       *gorm.DB
	log      *logger.Logger
	activity *ActivityService
}

func NewSearchService(db *gorm.DB, activity *ActivityService, baseLog *logger.Logger) *SearchService {
	return &SearchService{db: db, activity: activity, log: baseLog.With("service", "SearchService")}
}

// Search 主题与讨论帖标题匹配，记录 SEARCH 事件
func (s *SearchService) Search(ctx context.Context, query, userID string) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	res := &SearchResults{Query: query, Topics: []models.Topic{}, Threads: []models.Thread{}}
	if query == "" {
		return res, nil
	}
	like := "%" + query + "%"
	conn := s.db.WithContext(ctx)

	if err := conn.Where("LOWER(title) LIKE LOWER(?)", like).
		Order("title ASC").Limit(searchLimit).Find(&res.Topics).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := conn.Where("LOWER(title) LIKE LOWER(?)", like).
		Order("created_at DESC").Limit(searchLimit).Find(&res.Threads).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	s.activity.Track(ctx, userID, "search", SearchPayload{Query: query, Results: len(res.Topics) + len(res.Threads)})
	return res, nil
}
