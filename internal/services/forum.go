package services

import (
	"context"
	"sort"
	"strings"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"
	"wikits/internal/utils"

	"gorm.io/gorm"
)

const (
	SortNewest = "newest"
	SortActive = "active"
	SortTop    = "top"
	SortHot    = "hot"

	maxThreadTags  = 5
	hotWindow      = 30 * 24 * time.Hour
	hotCandidates  = 500
	voteScoreQuery = "(SELECT COALESCE(SUM(value), 0) FROM thread_votes WHERE thread_votes.thread_id = threads.id)"
)

type ThreadListFilter struct {
	Query    string
	Sort     string
	TopicID  *uint
	Category string
	Tag      string
	Page     utils.Pagination
}

type ThreadPage struct {
	Items      []models.Thread `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

type ThreadDetail struct {
	Thread     models.Thread `json:"thread"`
	Posts      []models.Post `json:"posts"`
	ViewerVote int           `json:"viewerVote"`
}

type CreateThreadInput struct {
	Title    string   `json:"title" binding:"required,max=200"`
	Content  string   `json:"content" binding:"required"`
	Category string   `json:"category" binding:"omitempty,max=64"`
	TopicID  *uint    `json:"topicId"`
	Tags     []string `json:"tags" binding:"omitempty,max=5,dive,max=32"`
}

type VoteResult struct {
	Score int `json:"score"`
	Vote  int `json:"vote"`
}

type TagCount struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	ThreadCount int64  `json:"threads"`
}

type ForumService struct {
	db       *gorm.DB
	log      *logger.Logger
	activity *ActivityService
}

func NewForumService(db *gorm.DB, activity *ActivityService, baseLog *logger.Logger) *ForumService {
	return &ForumService{db: db, activity: activity, log: baseLog.With("service", "ForumService")}
}

// ListThreads 支持 newest / active / top / hot 排序
func (s *ForumService) ListThreads(ctx context.Context, f ThreadListFilter) (*ThreadPage, error) {
	q := s.db.WithContext(ctx).Model(&models.Thread{})
	if term := strings.TrimSpace(f.Query); term != "" {
		q = q.Where("LOWER(threads.title) LIKE LOWER(?)", "%"+term+"%")
	}
	if f.TopicID != nil {
		q = q.Where("threads.topic_id = ?", *f.TopicID)
	}
	if f.Category != "" {
		q = q.Where("threads.category = ?", f.Category)
	}
	if tag := normalizeTag(f.Tag); tag != "" {
		q = q.Where("threads.id IN (?)", s.db.Table("thread_tags").
			Select("thread_tags.thread_id").
			Joins("JOIN tags ON tags.id = thread_tags.tag_id").
			Where("tags.name = ?", tag))
	}

	q = q.Session(&gorm.Session{})

	var total int64
	var threads []models.Thread
	var err error
	if f.Sort == SortHot {
		// hot 只在候选窗口内排序，总数也按窗口计
		threads, total, err = s.hotThreads(ctx, q, f.Page)
	} else {
		if err := q.Count(&total).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		switch f.Sort {
		case SortActive:
			q = q.Order("threads.updated_at DESC")
		case SortTop:
			q = q.Order(voteScoreQuery + " DESC").Order("threads.created_at DESC")
		default:
			q = q.Order("threads.created_at DESC")
		}
		err = q.Order("threads.id DESC").Preload("Tags").Offset(f.Page.Offset).Limit(f.Page.Limit).Find(&threads).Error
		if err == nil {
			err = s.fillStats(ctx, threads)
		}
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	return &ThreadPage{
		Items:      threads,
		Total:      total,
		Page:       f.Page.Page,
		Limit:      f.Page.Limit,
		TotalPages: utils.TotalPages(total, f.Page.Limit),
	}, nil
}

// hotThreads 近 30 天的候选帖在内存中按热度排序后分页
func (s *ForumService) hotThreads(ctx context.Context, q *gorm.DB, page utils.Pagination) ([]models.Thread, int64, error) {
	var candidates []models.Thread
	err := q.Where("threads.created_at >= ?", time.Now().Add(-hotWindow)).
		Order("threads.created_at DESC").Limit(hotCandidates).
		Preload("Tags").Find(&candidates).Error
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(candidates))
	if err := s.fillStats(ctx, candidates); err != nil {
		return nil, 0, err
	}
	downs, err := s.downvotes(ctx, threadIDs(candidates))
	if err != nil {
		return nil, 0, err
	}

	hot := make(map[uint]float64, len(candidates))
	for _, t := range candidates {
		down := downs[t.ID]
		up := t.Score + down
		hot[t.ID] = utils.HotScore(t.CreatedAt, up, down, t.ReplyCount)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return hot[candidates[i].ID] > hot[candidates[j].ID]
	})

	if page.Offset >= len(candidates) {
		return []models.Thread{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[page.Offset:end], total, nil
}

func threadIDs(threads []models.Thread) []uint {
	ids := make([]uint, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
	}
	return ids
}

// fillStats 批量填充回复数与得分
func (s *ForumService) fillStats(ctx context.Context, threads []models.Thread) error {
	if len(threads) == 0 {
		return nil
	}
	ids := threadIDs(threads)

	var postRows []struct {
		ThreadID uint
		N        int
	}
	if err := s.db.WithContext(ctx).Model(&models.Post{}).
		Select("thread_id, COUNT(*) AS n").
		Where("thread_id IN ?", ids).Group("thread_id").
		Scan(&postRows).Error; err != nil {
		return err
	}
	var voteRows []struct {
		ThreadID uint
		Score    int
	}
	if err := s.db.WithContext(ctx).Model(&models.ThreadVote{}).
		Select("thread_id, COALESCE(SUM(value), 0) AS score").
		Where("thread_id IN ?", ids).Group("thread_id").
		Scan(&voteRows).Error; err != nil {
		return err
	}

	posts := make(map[uint]int, len(postRows))
	for _, r := range postRows {
		posts[r.ThreadID] = r.N
	}
	scores := make(map[uint]int, len(voteRows))
	for _, r := range voteRows {
		scores[r.ThreadID] = r.Score
	}
	for i := range threads {
		// 首帖不算回复
		if n := posts[threads[i].ID]; n > 1 {
			threads[i].ReplyCount = n - 1
		}
		threads[i].Score = scores[threads[i].ID]
	}
	return nil
}

func (s *ForumService) downvotes(ctx context.Context, ids []uint) (map[uint]int, error) {
	out := make(map[uint]int)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ThreadID uint
		N        int
	}
	if err := s.db.WithContext(ctx).Model(&models.ThreadVote{}).
		Select("thread_id, COUNT(*) AS n").
		Where("thread_id IN ? AND value < 0", ids).Group("thread_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ThreadID] = r.N
	}
	return out, nil
}

func (s *ForumService) findThread(ctx context.Context, id uint) (*models.Thread, error) {
	var t models.Thread
	if err := s.db.WithContext(ctx).Preload("Tags").First(&t, id).Error; err != nil {
		return nil, notFoundOr(err, "thread")
	}
	return &t, nil
}

func (s *ForumService) GetThread(ctx context.Context, id uint, viewerID string) (*ThreadDetail, error) {
	t, err := s.findThread(ctx, id)
	if err != nil {
		return nil, err
	}
	threads := []models.Thread{*t}
	if err := s.fillStats(ctx, threads); err != nil {
		return nil, apperr.Internal(err)
	}
	d := &ThreadDetail{Thread: threads[0]}
	if err := s.db.WithContext(ctx).Where("thread_id = ?", id).Order("created_at ASC, id ASC").Find(&d.Posts).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if viewerID != "" {
		var v models.ThreadVote
		err := s.db.WithContext(ctx).Where("thread_id = ? AND user_id = ?", id, viewerID).Limit(1).Find(&v).Error
		if err != nil {
			return nil, apperr.Internal(err)
		}
		d.ViewerVote = v.Value
	}
	return d, nil
}

func normalizeTag(name string) string {
	return utils.Slugify(name)
}

// CreateThread 帖子、首帖与标签在同一事务内写入
func (s *ForumService) CreateThread(ctx context.Context, author Actor, in CreateThreadInput) (*models.Thread, error) {
	if author.ID == "" {
		return nil, apperr.Unauthorized("sign in to start a discussion")
	}
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return nil, apperr.Validation("title and content are required", nil)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "general"
	}

	var names []string
	seen := make(map[string]bool)
	for _, raw := range in.Tags {
		n := normalizeTag(raw)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	if len(names) > maxThreadTags {
		return nil, apperr.Validation("too many tags", map[string]int{"max": maxThreadTags})
	}

	thread := models.Thread{
		Title:      title,
		Category:   category,
		TopicID:    in.TopicID,
		AuthorID:   author.ID,
		AuthorName: author.DisplayName(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.TopicID != nil {
			var n int64
			if err := tx.Model(&models.Topic{}).Where("id = ?", *in.TopicID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return apperr.NotFound("topic")
			}
		}
		for _, name := range names {
			tag := models.Tag{Name: name}
			if err := tx.Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
				return err
			}
			thread.Tags = append(thread.Tags, tag)
		}
		if err := tx.Create(&thread).Error; err != nil {
			return err
		}
		post := models.Post{ThreadID: thread.ID, Content: content, AuthorID: author.ID, AuthorName: thread.AuthorName}
		return tx.Create(&post).Error
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	s.activity.Track(ctx, author.ID, "create thread", ForumPayload{ThreadID: thread.ID, Verb: "create_thread"})
	return &thread, nil
}

func (s *ForumService) AddPost(ctx context.Context, author Actor, threadID uint, content string) (*models.Post, error) {
	if author.ID == "" {
		return nil, apperr.Unauthorized("sign in to reply")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required", nil)
	}
	if _, err := s.findThread(ctx, threadID); err != nil {
		return nil, err
	}

	post := models.Post{ThreadID: threadID, Content: content, AuthorID: author.ID, AuthorName: author.DisplayName()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		// 用于 active 排序
		return tx.Model(&models.Thread{}).Where("id = ?", threadID).UpdateColumn("updated_at", post.CreatedAt).Error
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.activity.Track(ctx, author.ID, "reply", ForumPayload{ThreadID: threadID, PostID: &post.ID, Verb: "reply"})
	return &post, nil
}

// DeletePost 作者或管理员可删除；影响行数为 0 视为不存在
func (s *ForumService) DeletePost(ctx context.Context, actor Actor, postID uint) error {
	if actor.ID == "" {
		return apperr.Unauthorized("sign in required")
	}
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		return notFoundOr(err, "post")
	}
	if !actor.CanModify(post.AuthorID) {
		return apperr.Forbidden("only the author or an admin can delete this post")
	}
	res := s.db.WithContext(ctx).Where("id = ?", postID).Delete(&models.Post{})
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("post")
	}
	s.activity.Track(ctx, actor.ID, "delete post", ForumPayload{ThreadID: post.ThreadID, PostID: &post.ID, Verb: "delete_post"})
	return nil
}

func (s *ForumService) DeleteThread(ctx context.Context, actor Actor, threadID uint) error {
	if actor.ID == "" {
		return apperr.Unauthorized("sign in required")
	}
	var thread models.Thread
	if err := s.db.WithContext(ctx).First(&thread, threadID).Error; err != nil {
		return notFoundOr(err, "thread")
	}
	if !actor.CanModify(thread.AuthorID) {
		return apperr.Forbidden("only the author or an admin can delete this thread")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("thread_id = ?", threadID).Delete(&models.ThreadVote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id = ?", threadID).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM thread_tags WHERE thread_id = ?", threadID).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", threadID).Delete(&models.Thread{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("thread")
		}
		return nil
	})
	if err != nil {
		return wrapErr(err)
	}
	s.activity.Track(ctx, actor.ID, "delete thread", ForumPayload{ThreadID: threadID, Verb: "delete_thread"})
	return nil
}

// ToggleVote 同值再次投票取消，反向投票改写同一行
func (s *ForumService) ToggleVote(ctx context.Context, threadID uint, userID string, value int) (*VoteResult, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("sign in to vote")
	}
	if value != 1 && value != -1 {
		return nil, apperr.Validation("vote value must be 1 or -1", nil)
	}
	if _, err := s.findThread(ctx, threadID); err != nil {
		return nil, err
	}

	res := &VoteResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ThreadVote
		if err := tx.Where("thread_id = ? AND user_id = ?", threadID, userID).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		switch {
		case existing.ID == 0:
			if err := tx.Create(&models.ThreadVote{ThreadID: threadID, UserID: userID, Value: value}).Error; err != nil {
				return err
			}
			res.Vote = value
		case existing.Value == value:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		default:
			if err := tx.Model(&existing).Update("value", value).Error; err != nil {
				return err
			}
			res.Vote = value
		}
		return tx.Model(&models.ThreadVote{}).
			Select("COALESCE(SUM(value), 0)").
			Where("thread_id = ?", threadID).
			Scan(&res.Score).Error
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return res, nil
}

func (s *ForumService) ListTags(ctx context.Context) ([]TagCount, error) {
	var out []TagCount
	err := s.db.WithContext(ctx).Table("tags").
		Select("tags.id, tags.name, COUNT(thread_tags.thread_id) AS thread_count").
		Joins("LEFT JOIN thread_tags ON thread_tags.tag_id = tags.id").
		Group("tags.id, tags.name").
		Order("thread_count DESC, tags.name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}
