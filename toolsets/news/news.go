// Package news provides the AWS news tool and its companion prompts, backed
// by the aws-news.com article feed.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/patrickmn/go-cache"

	"github.com/arunksingh16/mcp/mcp"
	"github.com/arunksingh16/mcp/registry"
)

// DefaultBaseURL is the public article feed endpoint.
const DefaultBaseURL = "https://api.aws-news.com/articles"

const (
	defaultResultLimit = 40
	fetchAttempts      = 3
	fetchRetryDelay    = 250 * time.Millisecond
	cacheTTL           = 5 * time.Minute
)

// Set holds the news toolset's shared clients. One Set backs every registry
// snapshot; its fields are safe for concurrent use.
type Set struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
}

// Option configures NewSet.
type Option func(*Set)

// WithBaseURL overrides the article feed endpoint.
func WithBaseURL(u string) Option {
	return func(s *Set) { s.baseURL = u }
}

// WithHTTPClient overrides the HTTP client used for feed requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Set) { s.client = c }
}

// NewSet builds the toolset.
func NewSet(opts ...Option) *Set {
	s := &Set{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache.New(cacheTTL, cacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defs returns the toolset's capability definitions for registration.
func (s *Set) Defs() []registry.Def {
	return []registry.Def{
		s.newsTool(),
		latestPrompt(),
		newsPrompt(),
		blogsPrompt(),
	}
}

type newsArgs struct {
	Topic                     string `json:"topic" jsonschema:"description=AWS topic or service to search for such as 's3' or 'lambda'"`
	NewsType                  string `json:"news_type,omitempty" jsonschema:"enum=all,enum=news,enum=blogs,description=Type of news to return"`
	IncludeRegionalExpansions bool   `json:"include_regional_expansions,omitempty" jsonschema:"description=Whether to include regional expansion news"`
	NumberOfResults           int    `json:"number_of_results,omitempty" jsonschema:"description=Maximum number of results to return"`
	SinceDate                 string `json:"since_date,omitempty" jsonschema:"description=Optional ISO 8601 date such as '2025-01-01T00:00:00Z' to filter results"`
}

func (s *Set) newsTool() registry.ToolDef {
	return registry.NewTool[newsArgs]("get_aws_news", s.getNews,
		registry.WithDescription(`Returns a list of AWS news articles with announcements of new products, services, and capabilities for the specified AWS topic/service.

You can filter on news type which is news or blogs. By default, returns both news and blogs.

You can optionally ask for regional expansion news (defaults to false).

Optionally, specify a "since" date in ISO 8601 format by which to filter the results.`),
	)
}

func (s *Set) getNews(ctx context.Context, a newsArgs) (*mcp.CallToolResult, error) {
	articles, err := s.fetch(ctx, a)
	if err != nil {
		return registry.Errorf("Error fetching AWS news: %v", err), nil
	}
	newsType := a.NewsType
	if newsType == "" {
		newsType = "all"
	}
	return registry.JSONResult(map[string]any{
		"topic":                       a.Topic,
		"news_type":                   newsType,
		"include_regional_expansions": a.IncludeRegionalExpansions,
		"articles":                    articles,
	}), nil
}

// fetch retrieves articles from the feed, serving repeats of the same query
// from cache. Transient transport failures are retried with a short delay.
func (s *Set) fetch(ctx context.Context, a newsArgs) (json.RawMessage, error) {
	target, err := s.buildURL(a)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(target); ok {
		return cached.(json.RawMessage), nil
	}

	var body json.RawMessage
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("feed returned status %d", resp.StatusCode)
			}
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if !json.Valid(b) {
				return retry.Unrecoverable(fmt.Errorf("feed returned invalid JSON"))
			}
			body = json.RawMessage(b)
			return nil
		},
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchRetryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(target, body)
	return body, nil
}

func (s *Set) buildURL(a newsArgs) (string, error) {
	limit := a.NumberOfResults
	if limit <= 0 {
		limit = defaultResultLimit
	}
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(limit))
	q.Set("hide_regional_expansions", strconv.FormatBool(!a.IncludeRegionalExpansions))
	q.Set("search", a.Topic)

	switch strings.ToLower(a.NewsType) {
	case "news":
		q.Set("article_type", "news")
	case "blogs", "blog":
		q.Set("article_type", "blog")
	}

	if a.SinceDate != "" {
		if _, err := time.Parse(time.RFC3339, a.SinceDate); err != nil {
			return "", errors.New("Invalid date format. Please use ISO 8601 format (e.g., 2025-05-01T00:00:00Z)")
		}
		q.Set("since", a.SinceDate)
	}
	return s.baseURL + "?" + q.Encode(), nil
}

func promptText(kind, topics string, daysAgo string) string {
	days := daysAgo
	if days == "" {
		days = "90"
	}
	switch kind {
	case "news":
		return fmt.Sprintf("Tell me the latest AWS news of type news for %s over the past %s days.", topics, days)
	case "blogs":
		return fmt.Sprintf("Tell me the latest AWS blog posts for %s over the past %s days.", topics, days)
	default:
		return fmt.Sprintf("Tell me the latest AWS news and blogs for %s over the past %s days.", topics, days)
	}
}

func latestPrompt() registry.PromptDef {
	return registry.NewPrompt("aws_latest_prompt", func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
		return registry.UserText("Get the latest news and blogs from AWS on a list of subjects",
			promptText("all", args["topics"], args["days_ago"])), nil
	},
		registry.WithPromptDescription("Get the latest news and blogs from AWS on a list of subjects"),
		registry.WithPromptArgument("topics", "Comma-separated AWS topics or services", true),
		registry.WithPromptArgument("days_ago", "How many days back to look (default 90)", false),
	)
}

func newsPrompt() registry.PromptDef {
	return registry.NewPrompt("aws_news_prompt", func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
		return registry.UserText("Get the latest AWS news announcements",
			promptText("news", args["topics"], args["days_ago"])), nil
	},
		registry.WithPromptDescription("Get the latest AWS news announcements"),
		registry.WithPromptArgument("topics", "Comma-separated AWS topics or services", true),
		registry.WithPromptArgument("days_ago", "How many days back to look (default 90)", false),
	)
}

func blogsPrompt() registry.PromptDef {
	return registry.NewPrompt("aws_blogs_prompt", func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
		return registry.UserText("Get the latest AWS blog posts",
			promptText("blogs", args["topics"], args["days_ago"])), nil
	},
		registry.WithPromptDescription("Get the latest AWS blog posts"),
		registry.WithPromptArgument("topics", "Comma-separated AWS topics or services", true),
		registry.WithPromptArgument("days_ago", "How many days back to look (default 90)", false),
	)
}
