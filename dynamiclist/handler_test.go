package dynamiclist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

func newTestRouter(s *Service, user string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != "" {
			auth.SetPrincipal(c, &auth.Principal{ID: user, AuthType: auth.AuthTypeBasic})
		}
		c.Next()
	})
	NewHandler(s, discardLogger()).Register(r)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func postForm(r http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func countURL(contextName, criteria string) string {
	return "/system/myberkeley/dynamiclists/count?" + url.Values{
		"context":  {contextName},
		"criteria": {criteria},
	}.Encode()
}

func TestHandler_Count(t *testing.T) {
	s, repo, idx := newTestService(t)
	putContext(t, repo, testContext())
	idx.On("Search", mock.Anything, mock.Anything).Return(demographicDocs("bob", "alice"), nil)
	r := newTestRouter(s, "advisor1")

	rec := get(r, countURL("myb-ced-students", `{"OR": ["/colleges/CED/standings/grad"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count": 2}`, rec.Body.String())
}

func TestHandler_CountErrors(t *testing.T) {
	s, repo, _ := newTestService(t)
	putContext(t, repo, testContext())

	tests := []struct {
		name   string
		user   string
		target string
		want   int
	}{
		{"anonymous", "", countURL("myb-ced-students", "/colleges/CED/standings/grad"), http.StatusUnauthorized},
		{"missing criteria", "advisor1", "/system/myberkeley/dynamiclists/count?context=myb-ced-students", http.StatusBadRequest},
		{"unknown context", "advisor1", countURL("nope", "/colleges/CED/standings/grad"), http.StatusNotFound},
		{"criterion not allowed", "advisor1", countURL("myb-ced-students", "/colleges/LAW"), http.StatusForbidden},
		{"bad criteria", "advisor1", countURL("myb-ced-students", `{"XOR": ["/a"]}`), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newTestRouter(s, tt.user), tt.target)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandler_Lists(t *testing.T) {
	s, repo, idx := newTestService(t)
	ctx := context.Background()
	putContext(t, repo, testContext())
	idx.On("Search", mock.Anything, mock.Anything).Return(demographicDocs("alice", "bob", "carol"), nil)

	store := "a:advisor1/private/dynamic_lists"
	require.NoError(t, repo.Update(ctx, repository.NewContent(store, map[string]any{
		repository.PropResourceType: StoreResourceType,
	})))
	for _, name := range []string{"list1", "list2", "list3"} {
		require.NoError(t, repo.Update(ctx, repository.NewContent(store+"/"+name, map[string]any{
			repository.PropResourceType: ListResourceType,
			"sakai:name":                name,
			PropListContext:             "myb-ced-students",
			PropListCriteria:            "/colleges/CED/standings/grad",
		})))
	}
	require.NoError(t, repo.Update(ctx, repository.NewContent(store+"/other", map[string]any{"x": "y"})))
	r := newTestRouter(s, "advisor1")

	rec := get(r, "/system/myberkeley/dynamiclists/lists?path=/~advisor1/private/dynamic_lists&items=2&page=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var page map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, float64(3), page["total"])
	assert.NotContains(t, page, "list1")
	require.Contains(t, page, "list3")
	list := page["list3"].(map[string]any)
	assert.Equal(t, float64(3), list["numusers"])
	assert.Equal(t, "list3", list["sakai:name"])

	rec = get(r, "/system/myberkeley/dynamiclists/lists?path=/~advisor1/private/dynamic_lists")
	require.Equal(t, http.StatusOK, rec.Code)
	page = map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page, 4)

	rec = get(r, "/system/myberkeley/dynamiclists/lists?path=/~advisor1/private/dynamic_lists/list2")
	require.Equal(t, http.StatusOK, rec.Code)
	var single map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	assert.Equal(t, float64(3), single["numusers"])
	assert.NotContains(t, single, "total")
}

func TestHandler_ListsAccess(t *testing.T) {
	s, repo, _ := newTestService(t)
	ctx := context.Background()
	store := "a:advisor1/private/dynamic_lists"
	require.NoError(t, repo.Update(ctx, repository.NewContent(store, map[string]any{
		repository.PropResourceType: StoreResourceType,
	})))
	require.NoError(t, repo.SetACL(ctx, store, []repository.AccessControlEntry{
		repository.Grant("advisor1", repository.PrivAll),
		repository.Deny(repository.Everyone, repository.PrivAll),
	}))

	assert.Equal(t, http.StatusUnauthorized, get(newTestRouter(s, ""), "/system/myberkeley/dynamiclists/lists?path="+store).Code)
	assert.Equal(t, http.StatusForbidden, get(newTestRouter(s, "student"), "/system/myberkeley/dynamiclists/lists?path="+store).Code)
	assert.Equal(t, http.StatusBadRequest, get(newTestRouter(s, "advisor1"), "/system/myberkeley/dynamiclists/lists").Code)
	assert.Equal(t, http.StatusNotFound, get(newTestRouter(s, "advisor1"), "/system/myberkeley/dynamiclists/lists?path=/nowhere").Code)

	rec := get(newTestRouter(s, "advisor1"), "/system/myberkeley/dynamiclists/lists?path="+store)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total": 0}`, rec.Body.String())
}

func TestHandler_SetDemographic(t *testing.T) {
	s, repo, _ := newTestService(t)
	ctx := context.Background()
	const target = "/system/myberkeley/dynamiclists/demographic"

	rec := postForm(newTestRouter(s, "bob"), target, url.Values{
		PropDemographics: {"/colleges/CED/standings/grad", "/student/regstatus/registered", "/colleges/CED/standings/grad"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	node, err := repo.Get(ctx, DemographicPath("bob"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/colleges/CED/standings/grad", "/student/regstatus/registered"}, node.Strings(PropDemographics))

	rec = postForm(newTestRouter(s, "bob"), target, url.Values{PropDemographics + "@Delete": {""}})
	require.Equal(t, http.StatusOK, rec.Code)
	node, err = repo.Get(ctx, DemographicPath("bob"))
	require.NoError(t, err)
	assert.False(t, node.HasProperty(PropDemographics))

	assert.Equal(t, http.StatusBadRequest, postForm(newTestRouter(s, "bob"), target, url.Values{}).Code)
	assert.Equal(t, http.StatusUnauthorized, postForm(newTestRouter(s, ""), target, url.Values{PropDemographics: {"/a"}}).Code)
	assert.Equal(t, http.StatusForbidden, postForm(newTestRouter(s, "bob"), target,
		url.Values{"userId": {"alice"}, PropDemographics: {"/a"}}).Code)

	rec = postForm(newTestRouter(s, repository.AdminID), target, url.Values{"userId": {"alice"}, PropDemographics: {"/a"}})
	require.Equal(t, http.StatusOK, rec.Code)
	node, err = repo.Get(ctx, DemographicPath("alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, node.Strings(PropDemographics))
}

func TestHandler_UserIDs(t *testing.T) {
	s, repo, _ := newTestService(t)
	putHome(t, repo, "bob")
	require.NoError(t, s.SetDemographics(context.Background(), "bob", []string{"/a"}))

	assert.Equal(t, http.StatusInternalServerError, get(newTestRouter(s, "bob"), "/system/myberkeley/userIds").Code)

	rec := get(newTestRouter(s, repository.AdminID), "/system/myberkeley/userIds")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dropped": [], "nonparticipants": ["bob"], "participants": []}`, rec.Body.String())
}
