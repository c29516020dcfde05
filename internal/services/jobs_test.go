package services

import (
	"testing"
	"wikits/internal/apperr"
)

func TestJobStoreLifecycle(t *testing.T) {
	s := NewJobStore()

	if _, _, err := s.StartJob(JobSpec{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("missing topic: want Validation got=%v", err)
	}

	job, queued, err := s.StartJob(JobSpec{TopicID: 1})
	if err != nil || queued {
		t.Fatalf("StartJob: queued=%v err=%v", queued, err)
	}
	if job.Status != JobGenerating || job.Type != JobSyllabus || job.Content != "" {
		t.Fatalf("started job: %+v", job)
	}
	if !s.NeedsTrigger() {
		t.Fatalf("NeedsTrigger: want=true for fresh generating job")
	}

	claimed, ok := s.Claim()
	if !ok || claimed.ID != job.ID {
		t.Fatalf("Claim: ok=%v job=%+v", ok, claimed)
	}
	if _, ok := s.Claim(); ok {
		t.Fatalf("Claim twice: second claim must fail")
	}
	if s.NeedsTrigger() {
		t.Fatalf("NeedsTrigger: want=false once owned")
	}

	changed := s.Changed()
	if err := s.UpdateJobContent(job.ID, "# Graphs"); err != nil {
		t.Fatalf("UpdateJobContent: %v", err)
	}
	select {
	case <-changed:
	default:
		t.Fatalf("Changed: channel not closed after update")
	}

	done, err := s.FinishJob(job.ID, JobCompleted, "")
	if err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	if done.Content != "# Graphs" || done.FinishedAt == nil {
		t.Fatalf("finished job lost content: %+v", done)
	}
	snap := s.Snapshot()
	if snap.Active != nil || snap.Last == nil || snap.Last.Status != JobCompleted {
		t.Fatalf("snapshot after finish: %+v", snap)
	}
	if err := s.UpdateJobContent(job.ID, "late"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("update after finish: want Conflict got=%v", err)
	}
}

func TestJobStoreFIFOQueue(t *testing.T) {
	s := NewJobStore()
	first, _, _ := s.StartJob(JobSpec{TopicID: 1})
	second, queued, err := s.StartJob(JobSpec{TopicID: 2})
	if err != nil || !queued || second.Status != JobIdle {
		t.Fatalf("second: queued=%v job=%+v err=%v", queued, second, err)
	}
	chID := uint(9)
	third, queued, _ := s.StartJob(JobSpec{TopicID: 3, Type: JobChapter, ChapterID: &chID})
	if !queued {
		t.Fatalf("third: want queued")
	}

	active, _ := s.Active()
	if active.ID != first.ID {
		t.Fatalf("active overwritten: want=%s got=%s", first.ID, active.ID)
	}
	if q := s.Queue(); len(q) != 2 || q[0].ID != second.ID || q[1].ID != third.ID {
		t.Fatalf("queue order: %+v", q)
	}

	if _, err := s.FinishJob(first.ID, JobFailed, "boom"); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	active, _ = s.Active()
	if active.ID != second.ID || active.Status != JobGenerating {
		t.Fatalf("promotion: %+v", active)
	}
	if !s.NeedsTrigger() {
		t.Fatalf("promoted job must need a trigger")
	}
	if got, ok := s.Get(first.ID); !ok || got.Error != "boom" || got.Status != JobFailed {
		t.Fatalf("Get finished: %+v ok=%v", got, ok)
	}
}

func TestJobStoreRejectsBadSpecs(t *testing.T) {
	s := NewJobStore()
	if _, _, err := s.StartJob(JobSpec{TopicID: 1, Type: JobChapter}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("chapter without id: want Validation got=%v", err)
	}
	if _, _, err := s.StartJob(JobSpec{TopicID: 1, Type: "video"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown type: want Validation got=%v", err)
	}
	job, _, _ := s.StartJob(JobSpec{TopicID: 1})
	if _, err := s.FinishJob(job.ID, JobGenerating, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("non-terminal finish: want Validation got=%v", err)
	}
}
