package notice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/internal/queue"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

func newTestRouter(h *Handler, user string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != "" {
			auth.SetPrincipal(c, &auth.Principal{ID: user, AuthType: auth.AuthTypeBasic})
		}
		c.Next()
	})
	h.Register(r)
	return r
}

func postNotice(r http.Handler, userID string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/system/myberkeley/notices/"+userID, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func newTestHandler() (*memory.Store, *queue.Queue[PendingMessage], *Handler) {
	repo := memory.New()
	pending := queue.New[PendingMessage](4)
	h := NewHandler(repo, pending, discardLogger())
	h.now = func() time.Time { return time.Date(2011, 1, 3, 19, 45, 17, 0, time.UTC) }
	return repo, pending, h
}

func TestHandler_CreateQueued(t *testing.T) {
	repo, pending, h := newTestHandler()
	rec := postNotice(newTestRouter(h, "advisor"), "advisor", url.Values{
		PropTo:         {"alice", "bob"},
		PropSubject:    {"Forms due"},
		PropMessageBox: {BoxQueue},
		PropSendDate:   {"Tue Jan 11 2011 10:30:00 GMT-0800"},
		PropDueDate:    {"11.01.2011"},
		":operation":   {"create"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/~advisor/message/"+body.ID, body.Path)

	n, err := repo.Get(context.Background(), MessagePath("advisor", body.ID))
	require.NoError(t, err)
	assert.Equal(t, ResourceType, n.ResourceType())
	assert.Equal(t, TypeNotice, n.String(PropType))
	assert.Equal(t, body.ID, n.String(PropID))
	assert.Equal(t, "advisor", n.String(PropFrom))
	assert.Equal(t, []string{"alice", "bob"}, n.Strings(PropTo))
	assert.Equal(t, BoxQueue, n.String(PropMessageBox))
	assert.Equal(t, StatePending, n.String(PropSendState))
	assert.Equal(t, "2011-01-11T18:30:00.000Z", n.String(PropSendDate))
	assert.Equal(t, "2011-01-11T00:00:00.000Z", n.String(PropDueDate))
	assert.Equal(t, "2011-01-03T19:45:17.000Z", n.String(PropCreated))
	assert.False(t, n.HasProperty(":operation"))
	assert.Equal(t, 0, pending.Len())
}

func TestHandler_CreateOutboxSendsNow(t *testing.T) {
	repo, pending, h := newTestHandler()
	rec := postNotice(newTestRouter(h, repository.AdminID), "advisor", url.Values{PropTo: {"alice"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, pending.Len())

	ctx, cancel := context.WithCancel(context.Background())
	_ = pending.Consume(ctx, func(_ context.Context, m PendingMessage) {
		assert.Equal(t, "advisor", m.User)
		n, err := repo.Get(context.Background(), m.Path)
		require.NoError(t, err)
		assert.Equal(t, BoxOutbox, n.String(PropMessageBox))
		assert.Equal(t, StateNotified, n.String(PropSendState))
		cancel()
	})
}

func TestHandler_CreateErrors(t *testing.T) {
	_, _, h := newTestHandler()
	tests := []struct {
		name string
		user string
		form url.Values
		want int
	}{
		{"anonymous", "", url.Values{PropTo: {"alice"}}, http.StatusUnauthorized},
		{"other user", "student", url.Values{PropTo: {"alice"}}, http.StatusForbidden},
		{"missing to", "advisor", url.Values{PropSubject: {"hi"}}, http.StatusBadRequest},
		{"bad date", "advisor", url.Values{PropTo: {"alice"}, PropSendDate: {"soon"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postNotice(newTestRouter(h, tt.user), "advisor", tt.form).Code)
		})
	}
}
