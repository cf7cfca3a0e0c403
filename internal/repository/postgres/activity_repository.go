package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"buddiesfinder/internal/models"
)

type ActivityFilter struct {
	From  time.Time // earliest activity start, inclusive
	Name  string
	Types []models.ActivityType
}

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// listing selects activities with host name and participant count.
func (r *ActivityRepository) listing(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("sports_activity AS a").
		Select(`a.*, u.name AS host_name,
			(SELECT COUNT(*) FROM activity_participants p WHERE p.activity_id = a.id) AS participant_count`).
		Joins("JOIN users u ON u.id = a.host_id")
}

func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

func (r *ActivityRepository) Update(ctx context.Context, activity *models.Activity) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Activity{}).
		Where("id = ?", activity.ID).
		Updates(map[string]any{
			"activity_name": activity.Name,
			"activity_type": activity.Type,
			"skills_req":    activity.SkillsRequired,
			"activity_date": activity.Date,
			"location":      activity.Location,
			"max_pax":       activity.MaxParticipants,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("update activity: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *ActivityRepository) FindByID(ctx context.Context, id int64) (*models.Activity, error) {
	var activity models.Activity
	if err := r.listing(ctx).Where("a.id = ?", id).Take(&activity).Error; err != nil {
		return nil, translate(err)
	}
	return &activity, nil
}

// Upcoming lists activities on or after f.From that still have room.
func (r *ActivityRepository) Upcoming(ctx context.Context, f ActivityFilter) ([]models.Activity, error) {
	q := r.listing(ctx).
		Where("a.activity_date >= ?", f.From.UTC()).
		Where("(SELECT COUNT(*) FROM activity_participants p WHERE p.activity_id = a.id) < a.max_pax")
	if name := strings.TrimSpace(f.Name); name != "" {
		q = q.Where(`LOWER(a.activity_name) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(name))+"%")
	}
	if len(f.Types) > 0 {
		q = q.Where("a.activity_type IN ?", f.Types)
	}

	var out []models.Activity
	if err := q.Order("a.activity_date ASC, a.id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list upcoming activities: %w", err)
	}
	return out, nil
}

// HostedBy lists a host's activities dated on or after from.
func (r *ActivityRepository) HostedBy(ctx context.Context, hostID int64, from time.Time) ([]models.Activity, error) {
	var out []models.Activity
	err := r.listing(ctx).
		Where("a.host_id = ? AND a.activity_date >= ?", hostID, from.UTC()).
		Order("a.activity_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list hosted activities: %w", err)
	}
	return out, nil
}

func (r *ActivityRepository) JoinedBy(ctx context.Context, userID int64, from time.Time) ([]models.Activity, error) {
	var out []models.Activity
	err := r.listing(ctx).
		Where("EXISTS (SELECT 1 FROM activity_participants j WHERE j.activity_id = a.id AND j.user_id = ?)", userID).
		Where("a.activity_date >= ?", from.UTC()).
		Order("a.activity_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list joined activities: %w", err)
	}
	return out, nil
}

// AddParticipant inserts the pair only while the activity has room. It
// returns 0 rows when the activity is full.
func (r *ActivityRepository) AddParticipant(ctx context.Context, activityID, userID int64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		INSERT INTO activity_participants (activity_id, user_id, joined_at)
		SELECT ?, ?, ?
		WHERE (SELECT COUNT(*) FROM activity_participants WHERE activity_id = ?)
			< (SELECT max_pax FROM sports_activity WHERE id = ?)`,
		activityID, userID, at.UTC(), activityID, activityID)
	if res.Error != nil {
		return 0, fmt.Errorf("add participant: %w", translate(res.Error))
	}
	return res.RowsAffected, nil
}

func (r *ActivityRepository) RemoveParticipant(ctx context.Context, activityID, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("activity_id = ? AND user_id = ?", activityID, userID).
		Delete(&models.ActivityParticipant{})
	if res.Error != nil {
		return 0, fmt.Errorf("remove participant: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *ActivityRepository) IsParticipant(ctx context.Context, activityID, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ActivityParticipant{}).
		Where("activity_id = ? AND user_id = ?", activityID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return n > 0, nil
}

func (r *ActivityRepository) Participants(ctx context.Context, activityID int64) ([]models.UserSummary, error) {
	var out []models.UserSummary
	err := r.db.WithContext(ctx).
		Table("activity_participants AS p").
		Select("u.id, u.name").
		Joins("JOIN users u ON u.id = p.user_id").
		Where("p.activity_id = ?", activityID).
		Order("p.joined_at ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

// Delete removes an activity and its participant rows.
func (r *ActivityRepository) Delete(ctx context.Context, id int64) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activity_id = ?", id).Delete(&models.ActivityParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Activity{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete activity: %w", err)
	}
	return affected, nil
}
