package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/metrics"
	"wikits/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const syllabusSystemPrompt = `You are the editor of an encyclopedia. Produce a syllabus for the requested topic.
Reply with a single JSON object and nothing else, with the keys in this order:
{"title": string, "overview": string (2-4 sentences, markdown allowed),
 "chapters": [{"title": string}] (5-10 entries),
 "related": [{"title": string, "type": "prerequisite"|"extension"|"related"}] (3-6 entries)}`

const chapterSystemPrompt = `You are the author of an encyclopedia chapter. Write the requested chapter in markdown.
Start directly with the content, use ## and ### headings, keep it factual.`

// SyllabusResult 大纲生成的结构化输出
type SyllabusResult struct {
	Title    string `json:"title"`
	Overview string `json:"overview"`
	Chapters []struct {
		Title string `json:"title"`
	} `json:"chapters"`
	Related []struct {
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"related"`
}

// Generator 生成任务的执行者：认领 JobStore 中待触发的任务并调用模型
type Generator struct {
	db       *gorm.DB
	log      *logger.Logger
	llm      TextGenerator
	jobs     *JobStore
	activity *ActivityService
	settings *SettingsService
	wg       sync.WaitGroup
}

func NewGenerator(db *gorm.DB, llm TextGenerator, jobs *JobStore, activity *ActivityService, settings *SettingsService, baseLog *logger.Logger) *Generator {
	return &Generator{
		db:       db,
		llm:      llm,
		jobs:     jobs,
		activity: activity,
		settings: settings,
		log:      baseLog.With("service", "Generator"),
	}
}

func (g *Generator) Jobs() *JobStore {
	return g.jobs
}

// Start 校验后提交任务；空闲则立即执行，否则排队
func (g *Generator) Start(ctx context.Context, spec JobSpec) (Job, bool, error) {
	if !g.settings.Bool(ctx, SettingGenerationEnabled) {
		return Job{}, false, apperr.New(apperr.KindForbidden, "generation_disabled", "generation is disabled")
	}

	var topic models.Topic
	if err := g.db.WithContext(ctx).First(&topic, spec.TopicID).Error; err != nil {
		return Job{}, false, notFoundOr(err, "topic")
	}
	if spec.Type == JobChapter && spec.ChapterID != nil {
		var ch models.Chapter
		if err := g.db.WithContext(ctx).First(&ch, *spec.ChapterID).Error; err != nil {
			return Job{}, false, notFoundOr(err, "chapter")
		}
		if ch.TopicID != topic.ID {
			return Job{}, false, apperr.Validation("chapter does not belong to topic", nil)
		}
	}

	job, queued, err := g.jobs.StartJob(spec)
	if err != nil {
		return Job{}, false, err
	}
	g.log.Info("Generation job submitted", "job_id", job.ID, "topic_id", spec.TopicID, "type", job.Type, "queued", queued)
	g.Kick()
	return job, queued, nil
}

// Kick 若当前任务需要触发则在后台执行；可被重复调用
func (g *Generator) Kick() bool {
	job, ok := g.jobs.Claim()
	if !ok {
		return false
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.Run(context.Background(), job)
	}()
	return true
}

// Wait 等待所有后台任务结束
func (g *Generator) Wait() {
	g.wg.Wait()
}

// Run 执行已认领的任务直至结束，不可取消
func (g *Generator) Run(ctx context.Context, job Job) {
	var err error
	switch job.Type {
	case JobChapter:
		err = g.runChapter(ctx, job)
	default:
		err = g.runSyllabus(ctx, job)
	}

	status, msg := JobCompleted, ""
	if err != nil {
		status, msg = JobFailed, err.Error()
		g.log.Error("Generation job failed", "job_id", job.ID, "topic_id", job.TopicID, "error", err)
	} else {
		g.log.Info("Generation job completed", "job_id", job.ID, "topic_id", job.TopicID, "type", job.Type)
	}
	if _, ferr := g.jobs.FinishJob(job.ID, status, msg); ferr != nil {
		g.log.Warn("Failed to finish job", "job_id", job.ID, "error", ferr)
	}
	metrics.GenerationJobs.WithLabelValues(string(job.Type), string(status)).Inc()

	g.activity.Track(ctx, job.RequestedBy, "generate "+string(job.Type), GenerationPayload{
		TopicID:   job.TopicID,
		Kind:      string(job.Type),
		ChapterID: job.ChapterID,
		Status:    string(status),
		JobID:     job.ID,
	})

	// 队列中的下一个任务
	g.Kick()
}

func syllabusPreview(title, overview string) string {
	return "# " + title + "\n\n" + overview
}

func (g *Generator) runSyllabus(ctx context.Context, job Job) error {
	var topic models.Topic
	if err := g.db.WithContext(ctx).First(&topic, job.TopicID).Error; err != nil {
		return notFoundOr(err, "topic")
	}

	if !job.Force && !topic.IsStub() {
		overview := ""
		if topic.Overview != nil {
			overview = *topic.Overview
		}
		return g.jobs.UpdateJobContent(job.ID, syllabusPreview(topic.Title, overview))
	}

	prompt := fmt.Sprintf("Topic: %s\nSlug: %s", topic.Title, topic.Slug)
	var buf strings.Builder
	full, err := g.llm.StreamText(ctx, syllabusSystemPrompt, prompt, func(delta string) {
		buf.WriteString(delta)
		title := partialStringField(buf.String(), "title")
		overview := partialStringField(buf.String(), "overview")
		if title == "" && overview == "" {
			return
		}
		if title == "" {
			title = topic.Title
		}
		_ = g.jobs.UpdateJobContent(job.ID, syllabusPreview(title, overview))
	})
	if err != nil {
		return err
	}

	var out SyllabusResult
	if err := json.Unmarshal([]byte(stripCodeFence(full)), &out); err != nil {
		return apperr.External("llm", fmt.Errorf("invalid syllabus JSON: %w", err))
	}
	if len(out.Chapters) == 0 {
		return apperr.External("llm", errors.New("syllabus has no chapters"))
	}

	if err := g.persistSyllabus(ctx, &topic, &out, job.Force); err != nil {
		return err
	}
	return g.jobs.UpdateJobContent(job.ID, syllabusPreview(topic.Title, strings.TrimSpace(out.Overview)))
}

// persistSyllabus 一个事务内写入概述、大纲、章节占位与相关主题
func (g *Generator) persistSyllabus(ctx context.Context, topic *models.Topic, out *SyllabusResult, force bool) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		syllabus := make(datatypes.JSONSlice[models.SyllabusEntry], 0, len(out.Chapters))
		for _, c := range out.Chapters {
			title := strings.TrimSpace(c.Title)
			if title == "" {
				continue
			}
			syllabus = append(syllabus, models.SyllabusEntry{Title: title, Order: len(syllabus) + 1})
		}
		overview := strings.TrimSpace(out.Overview)
		if err := tx.Model(topic).Updates(map[string]interface{}{
			"overview": overview,
			"syllabus": syllabus,
		}).Error; err != nil {
			return err
		}

		if force {
			if err := tx.Where("topic_id = ?", topic.ID).Delete(&models.Chapter{}).Error; err != nil {
				return err
			}
		}
		for _, e := range syllabus {
			ch := models.Chapter{TopicID: topic.ID, Title: e.Title, Order: e.Order}
			if err := tx.Create(&ch).Error; err != nil {
				return err
			}
		}

		for _, r := range out.Related {
			related, _, err := getOrCreateStub(tx, r.Title)
			if err != nil {
				if apperr.Is(err, apperr.KindValidation) {
					continue
				}
				return err
			}
			if related.ID == topic.ID {
				continue
			}
			rel := models.Relationship{SourceTopicID: topic.ID, TargetTopicID: related.ID, Type: normalizeRelation(r.Type)}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rel).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr(err)
}

func normalizeRelation(t string) models.RelationshipType {
	switch models.RelationshipType(strings.ToLower(strings.TrimSpace(t))) {
	case models.RelationPrerequisite:
		return models.RelationPrerequisite
	case models.RelationExtension:
		return models.RelationExtension
	default:
		return models.RelationRelated
	}
}

func (g *Generator) runChapter(ctx context.Context, job Job) error {
	if job.ChapterID == nil {
		return apperr.Validation("chapterId is required for chapter jobs", nil)
	}
	var ch models.Chapter
	if err := g.db.WithContext(ctx).First(&ch, *job.ChapterID).Error; err != nil {
		return notFoundOr(err, "chapter")
	}
	var topic models.Topic
	if err := g.db.WithContext(ctx).First(&topic, ch.TopicID).Error; err != nil {
		return notFoundOr(err, "topic")
	}

	if !job.Force && ch.Content != nil && strings.TrimSpace(*ch.Content) != "" {
		return g.jobs.UpdateJobContent(job.ID, *ch.Content)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Topic: %s\n", topic.Title)
	if topic.Overview != nil {
		fmt.Fprintf(&prompt, "Overview: %s\n", *topic.Overview)
	}
	prompt.WriteString("Syllabus:\n")
	for _, e := range topic.Syllabus {
		fmt.Fprintf(&prompt, "%d. %s\n", e.Order, e.Title)
	}
	fmt.Fprintf(&prompt, "\nWrite chapter %d: %s", ch.Order, ch.Title)

	var buf strings.Builder
	full, err := g.llm.StreamText(ctx, chapterSystemPrompt, prompt.String(), func(delta string) {
		buf.WriteString(delta)
		_ = g.jobs.UpdateJobContent(job.ID, buf.String())
	})
	if err != nil {
		return err
	}
	content := strings.TrimSpace(full)
	if content == "" {
		return apperr.External("llm", errors.New("empty chapter"))
	}
	if err := g.db.WithContext(ctx).Model(&ch).Update("content", content).Error; err != nil {
		return apperr.Internal(err)
	}
	return g.jobs.UpdateJobContent(job.ID, content)
}
