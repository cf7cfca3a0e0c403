package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/util"
)

const (
	feedPageSize  = 100
	featuredLimit = 5
)

type PostInput struct {
	Content   string  `json:"content"`
	ImagePath *string `json:"image_path,omitempty"`
}

// AuthorFeed is one user's posts with their public identity.
type AuthorFeed struct {
	Author models.UserSummary `json:"author"`
	Posts  []models.Post      `json:"posts"`
}

type FeedService struct {
	posts    PostStore
	accounts AccountFinder
	now      func() time.Time
	logger   *zap.Logger
}

func NewFeedService(posts PostStore, accounts AccountFinder, logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedService{posts: posts, accounts: accounts, now: time.Now, logger: logger}
}

// Feed returns the newest posts as seen by viewerID.
func (s *FeedService) Feed(ctx context.Context, viewerID int64) ([]models.Post, error) {
	posts, err := s.posts.Recent(ctx, feedPageSize)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, viewerID, posts)
}

func (s *FeedService) Featured(ctx context.Context, viewerID int64) ([]models.Post, error) {
	posts, err := s.posts.MostLiked(ctx, featuredLimit)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, viewerID, posts)
}

// Post returns a single post with its comments as seen by viewerID.
func (s *FeedService) Post(ctx context.Context, viewerID, postID int64) (*models.Post, error) {
	post, err := s.find(ctx, postID)
	if err != nil {
		return nil, err
	}
	posts, err := s.decorate(ctx, viewerID, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// ByAuthor lists authorID's posts, newest first. An author without posts
// still resolves to an empty feed.
func (s *FeedService) ByAuthor(ctx context.Context, viewerID, authorID int64) (*AuthorFeed, error) {
	author, err := s.accounts.FindByID(ctx, authorID)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load author: %w", err)
	}
	posts, err := s.posts.ByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	posts, err = s.decorate(ctx, viewerID, posts)
	if err != nil {
		return nil, err
	}
	return &AuthorFeed{
		Author: models.UserSummary{ID: author.ID, Name: author.Name},
		Posts:  posts,
	}, nil
}

// decorate fills the viewer's like flag and each post's comments.
func (s *FeedService) decorate(ctx context.Context, viewerID int64, posts []models.Post) ([]models.Post, error) {
	if len(posts) == 0 {
		return []models.Post{}, nil
	}
	ids := make([]int64, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}

	liked, err := s.posts.LikedBy(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}
	comments, err := s.posts.CommentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	byPost := make(map[int64][]models.Comment, len(posts))
	for _, c := range comments {
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}

	for i := range posts {
		posts[i].Liked = liked[posts[i].ID]
		posts[i].Comments = byPost[posts[i].ID]
	}
	return posts, nil
}

func (s *FeedService) CreatePost(ctx context.Context, authorID int64, in PostInput) (*models.Post, error) {
	content, image, err := validatePost(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	post := &models.Post{AuthorID: authorID, Content: content, ImagePath: image, CreatedAt: now, UpdatedAt: now}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	s.logger.Info("Post created", util.Int64("post_id", post.ID), util.Int64("user_id", authorID))
	return post, nil
}

func (s *FeedService) EditPost(ctx context.Context, accountID, postID int64, in PostInput) (*models.Post, error) {
	post, err := s.find(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != accountID {
		return nil, ErrNotPostAuthor
	}
	content, image, err := validatePost(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.posts.UpdateContent(ctx, postID, content, image, s.now()); err != nil {
		return nil, err
	}
	return s.find(ctx, postID)
}

func (s *FeedService) DeletePost(ctx context.Context, accountID, postID int64) error {
	post, err := s.find(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != accountID {
		return ErrNotPostAuthor
	}
	if _, err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}
	s.logger.Info("Post deleted", util.Int64("post_id", postID), util.Int64("user_id", accountID))
	return nil
}

func (s *FeedService) Comment(ctx context.Context, accountID, postID int64, content string) (*models.Comment, error) {
	if _, err := s.find(ctx, postID); err != nil {
		return nil, err
	}
	text, err := cleanText("comment", content, 1, 255)
	if err != nil {
		return nil, err
	}
	comment := &models.Comment{PostID: postID, AuthorID: accountID, Content: text, CreatedAt: s.now().UTC()}
	if err := s.posts.AddComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Like is idempotent; liking twice leaves one like.
func (s *FeedService) Like(ctx context.Context, accountID, postID int64) error {
	if _, err := s.find(ctx, postID); err != nil {
		return err
	}
	return s.posts.Like(ctx, postID, accountID, s.now())
}

func (s *FeedService) Unlike(ctx context.Context, accountID, postID int64) error {
	if _, err := s.find(ctx, postID); err != nil {
		return err
	}
	_, err := s.posts.Unlike(ctx, postID, accountID)
	return err
}

func (s *FeedService) find(ctx context.Context, id int64) (*models.Post, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	return post, nil
}

func validatePost(in PostInput) (string, *string, error) {
	content, err := cleanText("content", in.Content, 1, 255)
	if err != nil {
		return "", nil, err
	}
	image, err := cleanImagePath(in.ImagePath)
	if err != nil {
		return "", nil, err
	}
	return content, image, nil
}
