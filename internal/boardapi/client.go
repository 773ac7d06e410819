// Package boardapi is the HTTP collaborator for the Kanban board service. It
// speaks the board's JSON-RPC 2.0 API: one method to read a full board
// snapshot, one to apply a reconciliation plan operation by operation.
package boardapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starford/workboard/internal/apperr"
	"github.com/starford/workboard/internal/board"
	"github.com/starford/workboard/internal/model"
)

// Config holds the board endpoint settings.
type Config struct {
	Endpoint string
	Token    string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to one board instance. Snapshot populates the column and
// swimlane id maps that Apply later needs, so a client is used for one board
// project at a time.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *slog.Logger

	columns   map[string]int // column title -> id
	swimlanes map[string]int // swimlane name -> id
}

// New creates a board client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("boardapi: endpoint is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:  cfg.Endpoint,
		token:     cfg.Token,
		http:      hc,
		logger:    logger,
		columns:   make(map[string]int),
		swimlanes: make(map[string]int),
	}, nil
}

// flexInt tolerates the board API's habit of returning numbers as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parse int %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

type columnPayload struct {
	ID    flexInt `json:"id"`
	Title string  `json:"title"`
}

type swimlanePayload struct {
	ID   flexInt `json:"id"`
	Name string  `json:"name"`
}

type taskPayload struct {
	ID           flexInt `json:"id"`
	Title        string  `json:"title"`
	Reference    string  `json:"reference"`
	ColumnID     flexInt `json:"column_id"`
	SwimlaneID   flexInt `json:"swimlane_id"`
	DateCreation flexInt `json:"date_creation"`
	DateStarted  flexInt `json:"date_started"`
	DateMoved    flexInt `json:"date_moved"`
}

type subtaskPayload struct {
	ID     flexInt `json:"id"`
	Title  string  `json:"title"`
	Status flexInt `json:"status"` // 2 = done
}

// Snapshot reads the full active board state for a project and normalizes it.
func (c *Client) Snapshot(ctx context.Context, projectID int) (*board.State, error) {
	var cols []columnPayload
	if err := c.call(ctx, "getColumns", map[string]any{"project_id": projectID}, &cols); err != nil {
		return nil, fmt.Errorf("boardapi: columns: %w", err)
	}
	columnOrder := make([]string, 0, len(cols))
	colName := make(map[int]string, len(cols))
	for _, col := range cols {
		columnOrder = append(columnOrder, col.Title)
		colName[int(col.ID)] = col.Title
		c.columns[col.Title] = int(col.ID)
	}

	var lanes []swimlanePayload
	if err := c.call(ctx, "getActiveSwimlanes", map[string]any{"project_id": projectID}, &lanes); err != nil {
		return nil, fmt.Errorf("boardapi: swimlanes: %w", err)
	}
	laneName := make(map[int]string, len(lanes))
	for _, l := range lanes {
		laneName[int(l.ID)] = l.Name
		c.swimlanes[l.Name] = int(l.ID)
	}

	var raw []taskPayload
	if err := c.call(ctx, "getAllTasks", map[string]any{"project_id": projectID, "status_id": 1}, &raw); err != nil {
		return nil, fmt.Errorf("boardapi: tasks: %w", err)
	}

	tasks := make([]*board.Task, 0, len(raw))
	for _, p := range raw {
		t := &board.Task{
			ID:          int(p.ID),
			Title:       p.Title,
			Column:      colName[int(p.ColumnID)],
			Swimlane:    laneName[int(p.SwimlaneID)],
			ExternalRef: p.Reference,
			CreatedAt:   unixTime(int(p.DateCreation)),
			StartedAt:   unixTime(int(p.DateStarted)),
			MovedAt:     unixTime(int(p.DateMoved)),
		}

		var tags map[string]string
		if err := c.call(ctx, "getTaskTags", map[string]any{"task_id": t.ID}, &tags); err != nil {
			return nil, fmt.Errorf("boardapi: tags for task %d: %w", t.ID, err)
		}
		for _, tag := range tags {
			t.Tags = append(t.Tags, tag)
		}

		var subs []subtaskPayload
		if err := c.call(ctx, "getAllSubtasks", map[string]any{"task_id": t.ID}, &subs); err != nil {
			return nil, fmt.Errorf("boardapi: subtasks for task %d: %w", t.ID, err)
		}
		for _, sp := range subs {
			t.Subtasks = append(t.Subtasks, board.Subtask{
				ID:    int(sp.ID),
				Title: sp.Title,
				Ref:   refFromSubtaskTitle(sp.Title),
				Done:  int(sp.Status) == 2,
			})
		}
		tasks = append(tasks, t)
	}
	return board.NewState(projectID, columnOrder, tasks), nil
}

// refFromSubtaskTitle extracts the embedded canonical record ref, expected as
// the title's first token.
func refFromSubtaskTitle(title string) string {
	first, _, _ := strings.Cut(title, " ")
	if _, err := model.ParseRef(first); err != nil {
		return ""
	}
	return first
}

func unixTime(ts int) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int    `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, ID: 1, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("jsonrpc", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", method, apperr.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", method, apperr.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w", method, apperr.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if rpc.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rpc.Error.Code, rpc.Error.Message)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpc.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
