package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Question struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Text     string `gorm:"column:text;type:text;uniqueIndex" json:"text"`
	Category string `gorm:"column:category;type:text" json:"category"`

	Tags pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`

	// free-form hints for the interviewer (JSONB)
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	BuiltIn   bool      `gorm:"column:built_in;type:boolean;default:false" json:"built_in"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Question) TableName() string { return "interview_questions" }
