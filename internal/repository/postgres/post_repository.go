package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"buddiesfinder/internal/models"
)

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) listing(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("feed AS f").
		Select(`f.*, u.name AS author_name,
			(SELECT COUNT(*) FROM feed_likes l WHERE l.post_id = f.id) AS like_count`).
		Joins("JOIN users u ON u.id = f.user_id")
}

func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = post.CreatedAt
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (r *PostRepository) FindByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.listing(ctx).Where("f.id = ?", id).Take(&post).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

func (r *PostRepository) UpdateContent(ctx context.Context, id int64, content string, imagePath *string, at time.Time) (int64, error) {
	var image any = gorm.Expr("NULL")
	if imagePath != nil {
		image = *imagePath
	}
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
		Updates(map[string]any{"content": content, "image_path": image, "updated_at": at.UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("update post: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes a post with its likes and comments.
func (r *PostRepository) Delete(ctx context.Context, id int64) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete post: %w", err)
	}
	return affected, nil
}

func (r *PostRepository) Recent(ctx context.Context, limit int) ([]models.Post, error) {
	var out []models.Post
	if err := r.listing(ctx).Order("f.created_at DESC, f.id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}

// MostLiked orders by like count, newest first among ties.
func (r *PostRepository) MostLiked(ctx context.Context, limit int) ([]models.Post, error) {
	var out []models.Post
	if err := r.listing(ctx).Order("like_count DESC, f.created_at DESC, f.id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list featured posts: %w", err)
	}
	return out, nil
}

func (r *PostRepository) ByAuthor(ctx context.Context, userID int64) ([]models.Post, error) {
	var out []models.Post
	if err := r.listing(ctx).Where("f.user_id = ?", userID).Order("f.created_at DESC, f.id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	return out, nil
}

// Like is idempotent.
func (r *PostRepository) Like(ctx context.Context, postID, userID int64, at time.Time) error {
	like := models.PostLike{PostID: postID, UserID: userID, CreatedAt: at.UTC()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
		return fmt.Errorf("like post: %w", err)
	}
	return nil
}

func (r *PostRepository) Unlike(ctx context.Context, postID, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
	if res.Error != nil {
		return 0, fmt.Errorf("unlike post: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LikedBy returns the subset of postIDs the user has liked.
func (r *PostRepository) LikedBy(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(postIDs) == 0 {
		return out, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.PostLike{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load likes: %w", err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *PostRepository) AddComment(ctx context.Context, comment *models.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

// CommentsFor loads comments for many posts, oldest first.
func (r *PostRepository) CommentsFor(ctx context.Context, postIDs []int64) ([]models.Comment, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	var out []models.Comment
	err := r.db.WithContext(ctx).
		Table("comments AS c").
		Select("c.*, u.name AS author_name").
		Joins("JOIN users u ON u.id = c.user_id").
		Where("c.post_id IN ?", postIDs).
		Order("c.created_at ASC, c.id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	return out, nil
}
