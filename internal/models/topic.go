package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyllabusEntry 大纲中的一个章节占位
type SyllabusEntry struct {
	Title string `json:"title"`
	Order int    `json:"order"`
}

// Topic 百科主题；Syllabus 为空表示仍是待生成的存根
type Topic struct {
	ID        uint                               `gorm:"primaryKey" json:"id"`
	Title     string                             `gorm:"not null" json:"title"`
	Slug      string                             `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	ParentID  *uint                              `gorm:"index" json:"parentId"`
	Overview  *string                            `gorm:"type:text" json:"overview"`
	Syllabus  datatypes.JSONSlice[SyllabusEntry] `json:"syllabus"`
	Icon      string                             `gorm:"size:32" json:"icon"`
	Order     int                                `gorm:"column:sort_order;default:0" json:"order"`
	CreatedAt time.Time                          `json:"createdAt"`
	UpdatedAt time.Time                          `json:"updatedAt"`
}

func (t *Topic) IsStub() bool {
	return len(t.Syllabus) == 0
}

// Chapter 主题下的章节，Content 在生成完成前为空
type Chapter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TopicID   uint      `gorm:"not null;index" json:"topicId"`
	Title     string    `gorm:"not null" json:"title"`
	Order     int       `gorm:"column:sort_order;default:0" json:"order"`
	Content   *string   `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type RelationshipType string

const (
	RelationPrerequisite RelationshipType = "prerequisite"
	RelationExtension    RelationshipType = "extension"
	RelationRelated      RelationshipType = "related"
)

// Relationship 主题之间的有向边（知识图谱）
type Relationship struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	SourceTopicID uint             `gorm:"not null;uniqueIndex:idx_relationship_edge" json:"sourceTopicId"`
	TargetTopicID uint             `gorm:"not null;uniqueIndex:idx_relationship_edge;index" json:"targetTopicId"`
	Type          RelationshipType `gorm:"size:32;not null;uniqueIndex:idx_relationship_edge" json:"type"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// FAQ 主题下的问答
type FAQ struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TopicID   uint      `gorm:"not null;index" json:"topicId"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text" json:"answer"`
	AskedBy   *string   `gorm:"size:191" json:"askedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

func (FAQ) TableName() string {
	return "faqs"
}
