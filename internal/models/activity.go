package models

import "time"

type ActivityType string

const (
	ActivitySports    ActivityType = "Sports"
	ActivityNonSports ActivityType = "Non Sports"
)

func (t ActivityType) Valid() bool {
	return t == ActivitySports || t == ActivityNonSports
}

type Activity struct {
	ID              int64        `gorm:"column:id;primaryKey" json:"id"`
	Name            string       `gorm:"column:activity_name" json:"activity_name"`
	Type            ActivityType `gorm:"column:activity_type" json:"activity_type"`
	SkillsRequired  string       `gorm:"column:skills_req" json:"skills_req"`
	Date            time.Time    `gorm:"column:activity_date" json:"date"` // start, UTC
	Location        string       `gorm:"column:location" json:"location"`
	MaxParticipants int          `gorm:"column:max_pax" json:"max_pax"`
	HostID          int64        `gorm:"column:host_id" json:"host_id"`
	CreatedAt       time.Time    `gorm:"column:created_at" json:"created_at"`

	// Filled by listing queries.
	HostName         string `gorm:"column:host_name;->;-:migration" json:"host_name,omitempty"`
	ParticipantCount int    `gorm:"column:participant_count;->;-:migration" json:"participant_count"`
}

func (Activity) TableName() string { return "sports_activity" }

func (a *Activity) IsFull() bool {
	return a.ParticipantCount >= a.MaxParticipants
}

type ActivityParticipant struct {
	ActivityID int64     `gorm:"column:activity_id;primaryKey"`
	UserID     int64     `gorm:"column:user_id;primaryKey"`
	JoinedAt   time.Time `gorm:"column:joined_at"`
}

func (ActivityParticipant) TableName() string { return "activity_participants" }
