package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/repository/postgres"
	"buddiesfinder/internal/security"
	"buddiesfinder/internal/util"
)

// ActivityDateLayout is how activity start times are entered, in UTC+8.
const ActivityDateLayout = "2006-01-02T15:04"

type ActivityInput struct {
	Name            string `json:"activity_name"`
	Type            string `json:"activity_type"`
	SkillsRequired  string `json:"skills_req"`
	Date            string `json:"date"`
	Location        string `json:"location"`
	MaxParticipants int    `json:"max_pax"`
}

type ActivityQuery struct {
	Name  string
	Types []string
}

type ActivityService struct {
	activities ActivityStore
	now        func() time.Time
	logger     *zap.Logger
}

func NewActivityService(activities ActivityStore, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{activities: activities, now: time.Now, logger: logger}
}

// Upcoming lists activities from today on that still have room.
func (s *ActivityService) Upcoming(ctx context.Context, q ActivityQuery) ([]models.Activity, error) {
	filter := postgres.ActivityFilter{
		From: startOfToday(s.now()),
		Name: util.SanitizeInput(q.Name),
	}
	for _, t := range q.Types {
		at := models.ActivityType(t)
		if !at.Valid() {
			return nil, invalid("unknown activity type %q", t)
		}
		filter.Types = append(filter.Types, at)
	}
	return s.activities.Upcoming(ctx, filter)
}

func (s *ActivityService) Host(ctx context.Context, hostID int64, in ActivityInput) (*models.Activity, error) {
	activity, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	activity.HostID = hostID
	activity.CreatedAt = s.now().UTC()

	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, err
	}
	s.logger.Info("Activity hosted",
		util.Int64("activity_id", activity.ID),
		util.Int64("host_id", hostID))
	return activity, nil
}

// Edit replaces an activity's details. Only the host may edit, and the
// capacity cannot drop below the current participant count.
func (s *ActivityService) Edit(ctx context.Context, accountID, activityID int64, in ActivityInput) (*models.Activity, error) {
	current, err := s.find(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if current.HostID != accountID {
		return nil, ErrNotActivityHost
	}

	updated, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	if updated.MaxParticipants < current.ParticipantCount {
		return nil, invalid("max participants cannot be below the %d already joined", current.ParticipantCount)
	}
	updated.ID = current.ID
	updated.HostID = current.HostID

	n, err := s.activities.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.find(ctx, activityID)
}

func (s *ActivityService) Join(ctx context.Context, accountID, activityID int64) error {
	activity, err := s.find(ctx, activityID)
	if err != nil {
		return err
	}
	if activity.HostID == accountID {
		return ErrHostCannotJoin
	}
	if activity.Date.Before(startOfToday(s.now())) {
		return ErrActivityPast
	}

	joined, err := s.activities.IsParticipant(ctx, activityID, accountID)
	if err != nil {
		return err
	}
	if joined {
		return ErrAlreadyJoined
	}

	n, err := s.activities.AddParticipant(ctx, activityID, accountID, s.now())
	if err != nil {
		if errors.Is(err, models.ErrDuplicateRecord) {
			return ErrAlreadyJoined
		}
		return err
	}
	if n == 0 {
		return ErrActivityFull
	}
	s.logger.Info("Activity joined",
		util.Int64("activity_id", activityID),
		util.Int64("user_id", accountID))
	return nil
}

func (s *ActivityService) Leave(ctx context.Context, accountID, activityID int64) error {
	if _, err := s.find(ctx, activityID); err != nil {
		return err
	}
	n, err := s.activities.RemoveParticipant(ctx, activityID, accountID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotJoined
	}
	return nil
}

func (s *ActivityService) Participants(ctx context.Context, activityID int64) ([]models.UserSummary, error) {
	if _, err := s.find(ctx, activityID); err != nil {
		return nil, err
	}
	return s.activities.Participants(ctx, activityID)
}

func (s *ActivityService) find(ctx context.Context, id int64) (*models.Activity, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	return activity, nil
}

func (s *ActivityService) validate(in ActivityInput) (*models.Activity, error) {
	name, err := cleanText("activity name", in.Name, 2, 50)
	if err != nil {
		return nil, err
	}
	activityType := models.ActivityType(in.Type)
	if !activityType.Valid() {
		return nil, invalid("activity type must be %q or %q", models.ActivitySports, models.ActivityNonSports)
	}
	skills, err := cleanText("required skills", in.SkillsRequired, 2, 100)
	if err != nil {
		return nil, err
	}
	location, err := cleanText("location", in.Location, 2, 50)
	if err != nil {
		return nil, err
	}
	if in.MaxParticipants < 1 {
		return nil, invalid("max participants must be at least 1")
	}
	start, err := time.ParseInLocation(ActivityDateLayout, in.Date, security.LockZone)
	if err != nil {
		return nil, invalid("date must look like %s", ActivityDateLayout)
	}
	if !start.After(s.now()) {
		return nil, invalid("date cannot be in the past (GMT+8)")
	}

	return &models.Activity{
		Name:            name,
		Type:            activityType,
		SkillsRequired:  skills,
		Date:            start.UTC(),
		Location:        location,
		MaxParticipants: in.MaxParticipants,
	}, nil
}
