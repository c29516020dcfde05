package services

import (
	"context"
	"errors"
	"testing"
	"wikits/internal/apperr"
	"wikits/internal/models"
	"wikits/internal/utils"

	"gorm.io/datatypes"
)

// fakeLLM 固定输出的文本生成器
type fakeLLM struct {
	text   string
	chunks []string
	err    error
	calls  int
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeLLM) StreamText(ctx context.Context, system, prompt string, onDelta func(string)) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	full := ""
	for _, c := range f.chunks {
		full += c
		if onDelta != nil {
			onDelta(c)
		}
	}
	return full, nil
}

func TestGetOrCreateStubIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	svc := NewTopicService(conn, &fakeLLM{}, testLogger())
	ctx := context.Background()

	first, created, err := svc.GetOrCreateStub(ctx, "Graph-Theory")
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	if first.Title != "Graph Theory" || first.Slug != "graph-theory" || !first.IsStub() {
		t.Fatalf("stub: unexpected %+v", first)
	}

	second, created, err := svc.GetOrCreateStub(ctx, "graph-theory")
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("ids differ: %d vs %d", first.ID, second.ID)
	}

	var n int64
	conn.Model(&models.Topic{}).Where("slug = ?", "graph-theory").Count(&n)
	if n != 1 {
		t.Fatalf("rows: want=1 got=%d", n)
	}

	if _, _, err := svc.GetOrCreateStub(ctx, "  --  "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty slug: want Validation got=%v", err)
	}
}

func TestChildrenSortFoldersFirst(t *testing.T) {
	conn := newTestDB(t)
	svc := NewTopicService(conn, &fakeLLM{}, testLogger())
	ctx := context.Background()

	root := models.Topic{Title: "Root", Slug: "root"}
	conn.Create(&root)
	mk := func(title string, order int) models.Topic {
		tp := models.Topic{Title: title, Slug: utils.Slugify(title), ParentID: &root.ID, Order: order}
		if err := conn.Create(&tp).Error; err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return tp
	}
	mk("zeta leaf", 0)
	mk("Alpha leaf", 0)
	mk("beta leaf", 0)
	folder := mk("Folder", 5)
	conn.Create(&models.Topic{Title: "Inner", Slug: "inner", ParentID: &folder.ID})
	mk("early leaf", -1)

	nodes, err := svc.Children(ctx, &root.ID)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	want := []string{"Folder", "early leaf", "Alpha leaf", "beta leaf", "zeta leaf"}
	if len(nodes) != len(want) {
		t.Fatalf("len: want=%d got=%d", len(want), len(nodes))
	}
	for i, w := range want {
		if nodes[i].Title != w {
			t.Fatalf("pos %d: want=%s got=%s", i, w, nodes[i].Title)
		}
	}
	if !nodes[0].HasChildren || nodes[0].ChildCount != 1 {
		t.Fatalf("folder flags: %+v", nodes[0])
	}

	roots, err := svc.Children(ctx, nil)
	if err != nil || len(roots) != 1 || roots[0].Slug != "root" {
		t.Fatalf("roots: %v err=%v", roots, err)
	}
}

func TestListStatusAndGraph(t *testing.T) {
	conn := newTestDB(t)
	svc := NewTopicService(conn, &fakeLLM{}, testLogger())
	ctx := context.Background()

	parent := models.Topic{Title: "Graph Theory", Slug: "graph-theory",
		Syllabus: datatypes.JSONSlice[models.SyllabusEntry]{{Title: "Basics", Order: 1}}}
	conn.Create(&parent)
	child := models.Topic{Title: "Trees", Slug: "trees", ParentID: &parent.ID}
	conn.Create(&child)
	other := models.Topic{Title: "Linear Algebra", Slug: "linear-algebra"}
	conn.Create(&other)
	body := "content"
	conn.Create(&models.Chapter{TopicID: parent.ID, Title: "Basics", Order: 1, Content: &body})
	conn.Create(&models.Chapter{TopicID: parent.ID, Title: "Later", Order: 2})
	conn.Create(&models.Relationship{SourceTopicID: parent.ID, TargetTopicID: other.ID, Type: models.RelationPrerequisite})

	page, err := svc.List(ctx, TopicListFilter{Query: "GRAPH", Page: utils.ParsePagination("1", "10", 20, 100)})
	if err != nil || page.Total != 1 || page.Items[0].Slug != "graph-theory" {
		t.Fatalf("List: %+v err=%v", page, err)
	}
	roots, _ := svc.List(ctx, TopicListFilter{RootsOnly: true, Page: utils.ParsePagination("", "", 20, 100)})
	if roots.Total != 2 {
		t.Fatalf("List roots: want=2 got=%d", roots.Total)
	}

	st, err := svc.Status(ctx, "graph-theory")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.ChapterCount != 2 || st.GeneratedChapters != 1 || st.ChildrenCount != 1 || !st.HasSyllabus {
		t.Fatalf("Status: %+v", st)
	}

	g, err := svc.Graph(ctx, "linear-algebra")
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 || g.Edges[0].Source != parent.ID {
		t.Fatalf("Graph: %+v", g)
	}

	if _, err := svc.Status(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("Status missing: want NotFound got=%v", err)
	}
}

func TestAddChapterAppendsToSyllabus(t *testing.T) {
	conn := newTestDB(t)
	svc := NewTopicService(conn, &fakeLLM{}, testLogger())
	ctx := context.Background()

	conn.Create(&models.Topic{Title: "Sets", Slug: "sets",
		Syllabus: datatypes.JSONSlice[models.SyllabusEntry]{{Title: "Intro", Order: 1}}})

	ch, err := svc.AddChapter(ctx, "sets", "Cardinality")
	if err != nil {
		t.Fatalf("AddChapter: %v", err)
	}
	if ch.Order != 2 || ch.Content != nil {
		t.Fatalf("chapter: %+v", ch)
	}
	topic, _ := svc.GetBySlug(ctx, "sets")
	if len(topic.Syllabus) != 2 || topic.Syllabus[1].Title != "Cardinality" {
		t.Fatalf("syllabus: %+v", topic.Syllabus)
	}
	if _, err := svc.AddChapter(ctx, "sets", " "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("blank title: want Validation got=%v", err)
	}
	if _, err := svc.AddChapter(ctx, "nope", "x"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing topic: want NotFound got=%v", err)
	}
}

func TestAskFAQ(t *testing.T) {
	conn := newTestDB(t)
	llm := &fakeLLM{text: "A tree is a connected acyclic graph."}
	svc := NewTopicService(conn, llm, testLogger())
	ctx := context.Background()

	topic := models.Topic{Title: "Trees", Slug: "trees"}
	conn.Create(&topic)

	faq, err := svc.AskFAQ(ctx, topic.ID, "What is a tree?", "user_1")
	if err != nil {
		t.Fatalf("AskFAQ: %v", err)
	}
	if faq.ID == 0 || faq.Answer != llm.text || faq.AskedBy == nil {
		t.Fatalf("faq: %+v", faq)
	}

	llm.err = apperr.External("llm", errors.New("down"))
	if _, err := svc.AskFAQ(ctx, topic.ID, "Again?", ""); !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("llm down: want External got=%v", err)
	}
	var n int64
	conn.Model(&models.FAQ{}).Count(&n)
	if n != 1 {
		t.Fatalf("faq rows: want=1 got=%d", n)
	}
}
