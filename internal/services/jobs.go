package services

import (
	"sync"
	"time"
	"wikits/internal/apperr"

	"github.com/google/uuid"
)

type JobType string

const (
	JobSyllabus JobType = "syllabus"
	JobChapter  JobType = "chapter"
)

type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobGenerating JobStatus = "generating"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type JobSpec struct {
	TopicID   uint    `json:"topicId"`
	Type      JobType `json:"type"`
	ChapterID *uint   `json:"chapterId,omitempty"`
	Force     bool    `json:"force"`
	// 发起人，用于活动日志
	RequestedBy string `json:"-"`
}

type Job struct {
	ID string `json:"id"`
	JobSpec
	Status     JobStatus  `json:"status"`
	Content    string     `json:"content"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// JobSnapshot 对外暴露的任务状态
type JobSnapshot struct {
	Active       *Job  `json:"active"`
	Last         *Job  `json:"last"`
	Queue        []Job `json:"queue"`
	NeedsTrigger bool  `json:"needsTrigger"`
}

const jobHistorySize = 50

// JobStore 全局唯一的生成任务槽位：同时只有一个任务在生成，其余按 FIFO 排队
type JobStore struct {
	mu      sync.Mutex
	active  *Job
	owned   bool
	queue   []*Job
	history []*Job
	changed chan struct{}
	now     func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// StartJob 空闲时直接开始，否则进入队列；queued 表示是否排队
func (s *JobStore) StartJob(spec JobSpec) (job Job, queued bool, err error) {
	if spec.TopicID == 0 {
		return Job{}, false, apperr.Validation("topicId is required", nil)
	}
	if spec.Type == "" {
		spec.Type = JobSyllabus
	}
	switch spec.Type {
	case JobSyllabus:
	case JobChapter:
		if spec.ChapterID == nil || *spec.ChapterID == 0 {
			return Job{}, false, apperr.Validation("chapterId is required for chapter jobs", nil)
		}
	default:
		return Job{}, false, apperr.Validation("unknown job type "+string(spec.Type), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &Job{
		ID:        uuid.NewString(),
		JobSpec:   spec,
		Status:    JobIdle,
		CreatedAt: s.now(),
	}
	if s.active != nil && s.active.Status == JobGenerating {
		s.queue = append(s.queue, j)
		s.notifyLocked()
		return *j, true, nil
	}
	s.activateLocked(j)
	s.notifyLocked()
	return *j, false, nil
}

func (s *JobStore) activateLocked(j *Job) {
	now := s.now()
	j.Status = JobGenerating
	j.Content = ""
	j.StartedAt = &now
	s.active = j
	s.owned = false
}

// UpdateJobContent 替换当前任务的累计内容
func (s *JobStore) UpdateJobContent(jobID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != jobID || s.active.Status != JobGenerating {
		return apperr.Conflict("job is not generating")
	}
	s.active.Content = text
	s.notifyLocked()
	return nil
}

// FinishJob 结束当前任务，内容保留；队首任务随即开始
func (s *JobStore) FinishJob(jobID string, status JobStatus, errMsg string) (Job, error) {
	if !status.Terminal() {
		return Job{}, apperr.Validation("finish status must be completed or failed", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != jobID {
		return Job{}, apperr.Conflict("job is not active")
	}

	now := s.now()
	done := s.active
	done.Status = status
	done.Error = errMsg
	done.FinishedAt = &now

	s.history = append(s.history, done)
	if len(s.history) > jobHistorySize {
		s.history = s.history[len(s.history)-jobHistorySize:]
	}
	s.active = nil
	s.owned = false

	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.activateLocked(next)
	}
	s.notifyLocked()
	return *done, nil
}

func (s *JobStore) Active() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Job{}, false
	}
	return *s.active, true
}

func (s *JobStore) Queue() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueLocked()
}

func (s *JobStore) queueLocked() []Job {
	out := make([]Job, len(s.queue))
	for i, j := range s.queue {
		out[i] = *j
	}
	return out
}

// NeedsTrigger 电平触发：生成中、内容为空且无执行者认领
func (s *JobStore) NeedsTrigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsTriggerLocked()
}

func (s *JobStore) needsTriggerLocked() bool {
	return s.active != nil && s.active.Status == JobGenerating && s.active.Content == "" && !s.owned
}

// Claim 认领需要触发的任务，同一任务只会被认领一次
func (s *JobStore) Claim() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.needsTriggerLocked() {
		return Job{}, false
	}
	s.owned = true
	return *s.active, true
}

// Get 按 ID 查找当前、排队或最近结束的任务
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.ID == id {
		return *s.active, true
	}
	for _, j := range s.queue {
		if j.ID == id {
			return *j, true
		}
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == id {
			return *s.history[i], true
		}
	}
	return Job{}, false
}

func (s *JobStore) Snapshot() JobSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := JobSnapshot{Queue: s.queueLocked(), NeedsTrigger: s.needsTriggerLocked()}
	if s.active != nil {
		a := *s.active
		snap.Active = &a
	}
	if n := len(s.history); n > 0 {
		l := *s.history[n-1]
		snap.Last = &l
	}
	return snap
}

// Changed 返回在下一次状态变化时关闭的 channel
func (s *JobStore) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *JobStore) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
