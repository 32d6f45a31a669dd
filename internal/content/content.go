// Package content reads course content from the CMS through the response
// cache. Every read is keyed by endpoint and course, so repeated reads
// within the TTL never reach the network.
//
// Cached entries live in memory for one process; only the counters persist.
// A one-shot command reads each list at most once and always misses. Hits
// come from long-running callers such as watch --poll.
package content

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/learnhub/lmscache/internal/api"
	"github.com/learnhub/lmscache/internal/respcache"
)

// Content types served by the CMS.
const (
	TypeLessons = "lessons"
	TypeModules = "modules"
	TypeQuizzes = "quizzes"
	TypeCourses = "courses"
)

// Item is one piece of course content.
type Item struct {
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Type   string `json:"type,omitempty"`
	Course string `json:"course,omitempty"`
	Module string `json:"module,omitempty"`
	Order  int    `json:"order"`
}

// Fetcher lists content of one type from the CMS.
type Fetcher interface {
	List(ctx context.Context, contentType string, params map[string]string) ([]Item, error)
}

// HTTPFetcher is a Fetcher backed by the CMS JSON API.
type HTTPFetcher struct {
	client *api.Client
}

// NewHTTPFetcher creates a fetcher using client.
func NewHTTPFetcher(client *api.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// List performs GET /api/<type>?<params>. The CMS may return a bare array
// or an object with a "data" array.
func (f *HTTPFetcher) List(ctx context.Context, contentType string, params map[string]string) ([]Item, error) {
	query := url.Values{}
	for k, v := range params {
		if v != "" {
			query.Set(k, v)
		}
	}
	resp, err := f.client.Get(ctx, Endpoint(contentType), query)
	if err != nil {
		return nil, err
	}

	var items []Item
	if err := resp.UnmarshalData(&items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Data []Item `json:"data"`
	}
	if err := resp.UnmarshalData(&wrapped); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", contentType, err)
	}
	return wrapped.Data, nil
}

// Endpoint returns the cache and API path for a content type.
func Endpoint(contentType string) string {
	return "/api/" + contentType
}

// Service serves content through the response cache.
type Service struct {
	fetcher Fetcher
	cache   *respcache.Store
}

// NewService creates a Service.
func NewService(fetcher Fetcher, cache *respcache.Store) *Service {
	return &Service{fetcher: fetcher, cache: cache}
}

// Lessons lists a course's lessons.
func (s *Service) Lessons(ctx context.Context, course string) ([]Item, error) {
	return s.list(ctx, TypeLessons, course)
}

// Modules lists a course's modules.
func (s *Service) Modules(ctx context.Context, course string) ([]Item, error) {
	return s.list(ctx, TypeModules, course)
}

// Quizzes lists a course's quizzes.
func (s *Service) Quizzes(ctx context.Context, course string) ([]Item, error) {
	return s.list(ctx, TypeQuizzes, course)
}

// Courses lists every course.
func (s *Service) Courses(ctx context.Context) ([]Item, error) {
	return s.list(ctx, TypeCourses, "")
}

func (s *Service) list(ctx context.Context, contentType, course string) ([]Item, error) {
	course = strings.TrimSpace(course)
	var params respcache.Params
	fetchParams := map[string]string{}
	if course != "" {
		params = respcache.Params{"course": course}
		fetchParams["course"] = course
	}
	return respcache.WithCache(ctx, s.cache, Endpoint(contentType), func(ctx context.Context) ([]Item, error) {
		return s.fetcher.List(ctx, contentType, fetchParams)
	}, params)
}
