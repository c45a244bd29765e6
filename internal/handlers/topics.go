package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/httputil"
	"github.com/latticesocial/lattice/internal/store"
)

// TopicIndex is the slice of the store the topic endpoints read.
type TopicIndex interface {
	TrendingTopics(ctx context.Context, limit int) ([]store.Topic, error)
	SearchTopics(ctx context.Context, prefix string, limit int) ([]store.Topic, error)
}

type topicResource struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PostCount int64  `json:"postCount"`
}

// TrendingTopics handles GET /topics/trending?limit=.
func TrendingTopics(index TopicIndex, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := clampPage(queryInt(r, "limit", 10), 10, 100)
		topics, err := index.TrendingTopics(r.Context(), limit)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, topicList(topics))
	}
}

// SearchTopics handles GET /topics/search?q=. Matching is a lowercase
// prefix match, mirroring how topics are stored.
func SearchTopics(index TopicIndex, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httputil.Error(w, log, apperr.New(apperr.CodeValidation, "q is required"))
			return
		}
		limit := clampPage(queryInt(r, "limit", 10), 10, 100)

		topics, err := index.SearchTopics(r.Context(), strings.ToLower(q), limit)
		if err != nil {
			httputil.Error(w, log, err)
			return
		}
		httputil.JSON(w, http.StatusOK, topicList(topics))
	}
}

func topicList(topics []store.Topic) map[string][]topicResource {
	out := make([]topicResource, 0, len(topics))
	for _, t := range topics {
		out = append(out, topicResource{ID: t.ID, Name: t.Name, PostCount: t.PostCount})
	}
	return map[string][]topicResource{"topics": out}
}
