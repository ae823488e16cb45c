// Package hass is a REST client for the Home Assistant state and service
// APIs. Read failures return empty results with a warning so one bad poll
// never kills the monitoring loop.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

// historyChunkSize bounds how many entity IDs go into one history request
// before the query string gets unreasonable.
const historyChunkSize = 150

// EntityState is one entity's state as reported by /api/states.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
}

// Domain returns the entity's domain prefix.
func (e EntityState) Domain() string {
	if i := strings.IndexByte(e.EntityID, '.'); i > 0 {
		return e.EntityID[:i]
	}
	return ""
}

// Client talks to one Home Assistant instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *telemetry.Logger
}

// NewClient creates a client from the state source settings.
func NewClient(cfg config.HomeAssistantConfig, logger *telemetry.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// GetStates fetches the current state of every entity the monitoring scope
// covers. A fetch failure returns an empty slice alongside the error; callers
// log and skip the cycle.
func (c *Client) GetStates(ctx context.Context, scope []string) ([]EntityState, error) {
	body, err := c.get(ctx, "/api/states")
	if err != nil {
		return nil, err
	}

	var states []EntityState
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("decode states: %w", err)
	}
	return FilterByScope(states, scope), nil
}

// GetHistory fetches recent state history for the given entities, chunking
// the entity list to keep request URLs bounded. Partial failures drop the
// failed chunk with a warning and keep the rest.
func (c *Client) GetHistory(ctx context.Context, entityIDs []string, since time.Time) ([][]EntityState, error) {
	var all [][]EntityState

	for start := 0; start < len(entityIDs); start += historyChunkSize {
		end := start + historyChunkSize
		if end > len(entityIDs) {
			end = len(entityIDs)
		}

		chunk, err := c.historyChunk(ctx, entityIDs[start:end], since)
		if err != nil {
			c.logger.Warn().Err(err).
				Int("chunk_start", start).
				Msg("history chunk failed, skipping")
			continue
		}
		all = append(all, chunk...)
	}
	return all, nil
}

// RecentChanges extracts state transitions from history series, oldest first
// within each entity. Series outside the monitoring scope are skipped. Used
// to seed the change buffer at startup so the first analysis request has
// context.
func (c *Client) RecentChanges(ctx context.Context, entityIDs []string, since time.Time, scope []string) []types.StateChange {
	series, err := c.GetHistory(ctx, entityIDs, since)
	if err != nil {
		c.logger.Warn().Err(err).Msg("history fetch failed, starting without context")
		return nil
	}

	var changes []types.StateChange
	for _, states := range series {
		if len(states) > 0 && !EntityInScope(states[0].EntityID, scope) {
			continue
		}
		for i := 1; i < len(states); i++ {
			prev, cur := states[i-1], states[i]
			if prev.State == cur.State {
				continue
			}
			changes = append(changes, types.StateChange{
				EntityID:   cur.EntityID,
				Domain:     cur.Domain(),
				OldState:   prev.State,
				NewState:   cur.State,
				ChangedAt:  cur.LastChanged,
				Attributes: cur.Attributes,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].ChangedAt.Before(changes[j].ChangedAt)
	})
	return changes
}

func (c *Client) historyChunk(ctx context.Context, entityIDs []string, since time.Time) ([][]EntityState, error) {
	path := fmt.Sprintf("/api/history/period/%s?filter_entity_id=%s",
		since.UTC().Format(time.RFC3339),
		url.QueryEscape(strings.Join(entityIDs, ",")))

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var history [][]EntityState
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return history, nil
}

// SendNotification dispatches an insight notification. The
// persistent_notification service maps to its create action; anything else is
// treated as a notify platform service.
func (c *Client) SendNotification(ctx context.Context, service, title, message string) error {
	path := "/api/services/notify/" + service
	if service == "persistent_notification" {
		path = "/api/services/persistent_notification/create"
	}

	payload, err := json.Marshal(map[string]string{
		"title":   title,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if _, err := c.post(ctx, path, payload); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("state API error %d: %s", resp.StatusCode, truncateBody(data))
	}
	return data, nil
}

func truncateBody(data []byte) string {
	const limit = 200
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "..."
}
