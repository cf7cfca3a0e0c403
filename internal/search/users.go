package search

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"buddiesfinder/internal/models"
)

// DocumentStore is the slice of the Elasticsearch client the index uses.
type DocumentStore interface {
	Search(ctx context.Context, index string, query map[string]any, target any) error
	IndexDocument(ctx context.Context, index, id string, document any) error
}

// NameSearcher is the relational fallback.
type NameSearcher interface {
	SearchByName(ctx context.Context, query string, limit int) ([]models.UserSummary, error)
}

// MinQueryLength is the shortest query that reaches a store.
const MinQueryLength = 2

type userDocument struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	NameLower string `json:"name_lower"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source userDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// UserIndex finds accounts by a substring of their display name. Without a
// document store, or when it fails, the relational store answers instead.
type UserIndex struct {
	docs     DocumentStore
	index    string
	fallback NameSearcher
	logger   *zap.Logger
}

func NewUserIndex(docs DocumentStore, index string, fallback NameSearcher, logger *zap.Logger) *UserIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserIndex{docs: docs, index: index, fallback: fallback, logger: logger}
}

// IndexUser adds or replaces the document for an account. It is a no-op
// without a document store.
func (u *UserIndex) IndexUser(ctx context.Context, user models.UserSummary) error {
	if u.docs == nil {
		return nil
	}
	doc := userDocument{ID: user.ID, Name: user.Name, NameLower: strings.ToLower(user.Name)}
	return u.docs.IndexDocument(ctx, u.index, strconv.FormatInt(user.ID, 10), doc)
}

// SearchUsers returns an empty result for queries shorter than
// MinQueryLength.
func (u *UserIndex) SearchUsers(ctx context.Context, query string, limit int) ([]models.UserSummary, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return []models.UserSummary{}, nil
	}
	if u.docs == nil {
		return u.fallback.SearchByName(ctx, query, limit)
	}

	var res searchResponse
	err := u.docs.Search(ctx, u.index, map[string]any{
		"size": limit,
		"query": map[string]any{
			"wildcard": map[string]any{
				"name_lower.keyword": map[string]any{
					"value": "*" + escapeWildcard(strings.ToLower(query)) + "*",
				},
			},
		},
		"sort": []any{map[string]any{"name_lower.keyword": "asc"}},
	}, &res)
	if err != nil {
		u.logger.Warn("user index search failed, using database", zap.Error(err))
		return u.fallback.SearchByName(ctx, query, limit)
	}

	out := make([]models.UserSummary, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		out = append(out, models.UserSummary{ID: hit.Source.ID, Name: hit.Source.Name})
	}
	return out, nil
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}
