// Package tracker is the HTTP collaborator for the tracker service. It
// fetches records, links, and discussion metadata, distinguishing transient
// failures (worth retrying on a later run) from permanent ones. It performs
// no retries itself.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/workboard/internal/apperr"
	"github.com/starford/workboard/internal/model"
)

// Config holds the tracker endpoint settings.
type Config struct {
	BaseURL string
	Token   string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to one tracker instance.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

// New creates a tracker client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("tracker: parse base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: base, token: cfg.Token, http: hc, logger: logger}, nil
}

type issuePayload struct {
	IID    int      `json:"iid"`
	Title  string   `json:"title"`
	State  string   `json:"state"`
	Labels []string `json:"labels"`
	Author struct {
		Username string `json:"username"`
	} `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type linkPayload struct {
	IID        int    `json:"iid"`
	LinkType   string `json:"link_type"`
	References struct {
		Full string `json:"full"`
	} `json:"references"`
}

type discussionPayload struct {
	Notes []struct {
		CreatedAt  time.Time `json:"created_at"`
		Resolvable bool      `json:"resolvable"`
		Resolved   bool      `json:"resolved"`
	} `json:"notes"`
}

// Records fetches every issue and merge request of a project as an immutable
// snapshot for this run.
func (c *Client) Records(ctx context.Context, project string) ([]*model.Record, error) {
	var out []*model.Record

	issues, err := getPaged[issuePayload](ctx, c, c.projectPath(project, "issues"))
	if err != nil {
		return nil, fmt.Errorf("tracker: issues for %s: %w", project, err)
	}
	for _, p := range issues {
		out = append(out, recordFrom(project, model.KindIssue, p))
	}

	mrs, err := getPaged[issuePayload](ctx, c, c.projectPath(project, "merge_requests"))
	if err != nil {
		return nil, fmt.Errorf("tracker: merge requests for %s: %w", project, err)
	}
	for _, p := range mrs {
		out = append(out, recordFrom(project, model.KindMergeRequest, p))
	}
	return out, nil
}

// Links fetches the link edges of the given records: issue-to-issue links as
// the tracker reports them, plus related merge requests as part-of edges
// pointing at the issue. Link types outside the known set come back as
// LinkUnknown and are logged, not dropped here; the builder ignores them.
func (c *Client) Links(ctx context.Context, project string, records []*model.Record) ([]model.Link, error) {
	var out []model.Link
	for _, r := range records {
		if r.Ref.Kind != model.KindIssue {
			continue
		}
		iid := strconv.Itoa(r.Ref.Number)

		linked, err := getPaged[linkPayload](ctx, c, c.projectPath(project, "issues/"+iid+"/links"))
		if err != nil {
			return nil, fmt.Errorf("tracker: links for %s: %w", r.Ref, err)
		}
		for _, l := range linked {
			to, err := model.ParseRef(l.References.Full)
			if err != nil {
				c.logger.Warn("tracker: skipping link with malformed reference",
					slog.String("from", r.Ref.String()),
					slog.String("reference", l.References.Full))
				continue
			}
			kind := model.ParseLinkKind(l.LinkType)
			if kind == model.LinkUnknown {
				c.logger.Debug("tracker: unknown link type",
					slog.String("from", r.Ref.String()),
					slog.String("link_type", l.LinkType))
			}
			out = append(out, model.Link{From: r.Ref, To: to, Kind: kind})
		}

		related, err := getPaged[issuePayload](ctx, c, c.projectPath(project, "issues/"+iid+"/related_merge_requests"))
		if err != nil {
			return nil, fmt.Errorf("tracker: related merge requests for %s: %w", r.Ref, err)
		}
		for _, mr := range related {
			from := model.RecordRef{Project: project, Kind: model.KindMergeRequest, Number: mr.IID}
			out = append(out, model.Link{From: from, To: r.Ref, Kind: model.LinkPartOf})
		}
	}
	return out, nil
}

// OldestUnresolvedThread returns the creation time of the oldest unresolved
// discussion thread on the record, or the zero time when there is none.
func (c *Client) OldestUnresolvedThread(ctx context.Context, ref model.RecordRef) (time.Time, error) {
	kind := "issues"
	if ref.Kind == model.KindMergeRequest {
		kind = "merge_requests"
	}
	path := c.projectPath(ref.Project, fmt.Sprintf("%s/%d/discussions", kind, ref.Number))

	discussions, err := getPaged[discussionPayload](ctx, c, path)
	if err != nil {
		return time.Time{}, fmt.Errorf("tracker: discussions for %s: %w", ref, err)
	}
	var oldest time.Time
	for _, d := range discussions {
		if len(d.Notes) == 0 || !unresolved(d) {
			continue
		}
		// The thread's age is its first note, even when the unresolved note
		// came later in the exchange.
		created := d.Notes[0].CreatedAt
		if oldest.IsZero() || created.Before(oldest) {
			oldest = created
		}
	}
	return oldest, nil
}

func unresolved(d discussionPayload) bool {
	for _, n := range d.Notes {
		if n.Resolvable && !n.Resolved {
			return true
		}
	}
	return false
}

func recordFrom(project string, kind model.RecordKind, p issuePayload) *model.Record {
	return &model.Record{
		Ref:       model.RecordRef{Project: project, Kind: kind, Number: p.IID},
		Title:     p.Title,
		State:     model.ParseState(p.State),
		Labels:    p.Labels,
		Author:    p.Author.Username,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (c *Client) projectPath(project, rest string) string {
	return "/api/v4/projects/" + url.PathEscape(project) + "/" + rest
}

// getPaged follows X-Next-Page headers, collecting every page.
func getPaged[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var out []T
	page := "1"
	for page != "" {
		var batch []T
		next, err := c.getPage(ctx, path, page, &batch)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		page = next
	}
	return out, nil
}

func (c *Client) getPage(ctx context.Context, path, page string, dst any) (string, error) {
	q := url.Values{}
	q.Set("per_page", "100")
	q.Set("page", page)
	q.Set("state", "all")
	// The path may contain an escaped project ref; splice it in verbatim so
	// the %2F survives.
	target := strings.TrimRight(c.base.String(), "/") + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", fmt.Errorf("GET %s: %w", path, err)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return "", fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return resp.Header.Get("X-Next-Page"), nil
}

// classifyStatus maps HTTP statuses onto the transient/permanent taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.ErrUnauthorized
	case status == http.StatusNotFound:
		return apperr.ErrNotFound
	case status == http.StatusTooManyRequests:
		return apperr.ErrRateLimited
	case status >= 500:
		return apperr.ErrUnavailable
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}
