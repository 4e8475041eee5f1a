package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftbid/backend/internal/models"
)

type memFeed struct {
	events []*models.Event
}

func (f *memFeed) ListAfter(_ context.Context, after int64, limit int) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range f.events {
		if e.Seq > after {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func seedFeed(n int) *memFeed {
	f := &memFeed{}
	for i := 0; i < n; i++ {
		f.events = append(f.events, &models.Event{
			Seq:    int64(i + 1),
			ID:     uuid.New(),
			Type:   models.EventLeadCreated,
			LeadID: uuid.New(),
		})
	}
	return f
}

func TestListEvents(t *testing.T) {
	h := NewHandler(seedFeed(5), NewHub(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?after=2&limit=2", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []*models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].Seq)
	assert.Equal(t, int64(4), list[1].Seq)
}

func TestListEventsEmptyFeed(t *testing.T) {
	h := NewHandler(&memFeed{}, NewHub(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListEventsBadCursor(t *testing.T) {
	h := NewHandler(seedFeed(1), NewHub(), nil)

	for _, query := range []string{"?after=-1", "?after=x", "?limit=0", "?limit=10000"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events"+query, nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %s", query)
	}
}

func TestCursorParamsDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	after, limit, ok := cursorParams(req)
	require.True(t, ok)
	assert.Equal(t, int64(0), after)
	assert.Equal(t, 100, limit)
}
