package provision

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

type fixedForeign mo.Option[string]

func (f fixedForeign) GetForeignPrincipal(http.ResponseWriter, *http.Request) mo.Option[string] {
	return mo.Option[string](f)
}

type handlerFixture struct {
	repo   *memory.Store
	people *mockPeople
	router func(user string) *gin.Engine
}

func newHandlerFixture(t *testing.T, foreign mo.Option[string]) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo, lists, s := newTestService()
	lists.On("SetDemographics", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	people := &mockPeople{}
	h := NewHandler(s, people, fixedForeign(foreign), discardLogger())
	return &handlerFixture{
		repo:   repo,
		people: people,
		router: func(user string) *gin.Engine {
			r := gin.New()
			r.Use(func(c *gin.Context) {
				if user != "" {
					auth.SetPrincipal(c, &auth.Principal{ID: user, AuthType: auth.AuthTypeBasic})
				}
				c.Next()
			})
			h.Register(r)
			return r
		},
	}
}

func do(r http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if method == http.MethodGet {
		req = httptest.NewRequest(method, target+"?"+form.Encode(), nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_Parameters(t *testing.T) {
	f := newHandlerFixture(t, mo.None[string]())

	rec := do(f.router(repository.AdminID), http.MethodPost, "/system/accountProvider/parameters", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing userId parameter", rec.Body.String())

	rec = do(f.router("bob"), http.MethodPost, "/system/accountProvider/parameters", url.Values{"userId": {"bob"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(f.router(repository.AdminID), http.MethodPost, "/system/accountProvider/parameters.tidy", url.Values{
		"userId":           {"testuser"},
		"firstName":        {"Test"},
		"myb-demographics": {"/colleges/ENV DSGN/standings/grad", "/student/educ_level/Masters"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n    ")
	body := decode(t, rec)
	assert.Equal(t, "created", body["synchronizationState"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "testuser", user["rep:userId"])
	assert.Equal(t, "Test", user["firstName"])
}

func TestHandler_Self(t *testing.T) {
	attrs := map[string]any{AttrName: "271592", AttrFirstName: "Oski", AttrDemographics: []string{}}

	t.Run("unknown user", func(t *testing.T) {
		f := newHandlerFixture(t, mo.None[string]())
		rec := do(f.router(""), http.MethodGet, "/system/accountProvider/self", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Unknown user", rec.Body.String())
	})

	t.Run("get shows attributes", func(t *testing.T) {
		f := newHandlerFixture(t, mo.Some("271592"))
		f.people.On("PersonAttributes", mock.Anything, "271592").Return(attrs, nil)
		rec := do(f.router(""), http.MethodGet, "/system/accountProvider/self", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Oski", decode(t, rec)[AttrFirstName])
		_, err := f.repo.FindAuthorizable(t.Context(), "271592")
		assert.True(t, repository.IsNotFound(err))
	})

	t.Run("post provisions a participant", func(t *testing.T) {
		f := newHandlerFixture(t, mo.Some("271592"))
		f.people.On("PersonAttributes", mock.Anything, "271592").Return(attrs, nil)
		rec := do(f.router(""), http.MethodPost, "/system/accountProvider/self", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "271592", decode(t, rec)["rep:userId"])
		assert.Equal(t, "true", element(t, f.repo, "271592", "myberkeley", "participant"))
	})
}

func TestHandler_PersonProvision(t *testing.T) {
	f := newHandlerFixture(t, mo.None[string]())
	f.people.On("PersonAttributes", mock.Anything, "1111").Return(map[string]any{AttrName: "1111", AttrRole: "Staff"}, nil)
	f.people.On("PersonAttributes", mock.Anything, "bogus").Return(nil, nil)

	tests := []struct {
		name     string
		user     string
		method   string
		form     url.Values
		wantCode int
		wantBody string
	}{
		{name: "non-admin get", user: "bob", method: http.MethodGet, form: url.Values{"userIds": {"1111"}}, wantCode: http.StatusUnauthorized, wantBody: keepOut},
		{name: "non-admin post", user: "bob", method: http.MethodPost, form: url.Values{"userIds": {"1111"}}, wantCode: http.StatusUnauthorized, wantBody: keepOut},
		{name: "missing ids", user: repository.AdminID, method: http.MethodPost, form: url.Values{}, wantCode: http.StatusBadRequest, wantBody: "Missing userIds parameter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(f.router(tt.user), tt.method, "/system/myberkeley/personProvision", tt.form)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}

	rec := do(f.router(repository.AdminID), http.MethodGet, "/system/myberkeley/personProvision", url.Values{"userIds": {"1111", "bogus"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[{":name":"1111","role":"Staff"},null]}`, rec.Body.String())

	rec = do(f.router(repository.AdminID), http.MethodPost, "/system/myberkeley/personProvision", url.Values{"userIds": {"1111", "bogus"}})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode(t, rec)["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "created", first["synchronizationState"])
	assert.Equal(t, "1111", first["user"].(map[string]any)["rep:userId"])
	second := results[1].(map[string]any)
	assert.Equal(t, "error", second["synchronizationState"])
	assert.Nil(t, second["user"])
}

func TestHandler_TestPersonProvision(t *testing.T) {
	f := newHandlerFixture(t, mo.Some("271592"))

	rec := do(f.router("bob"), http.MethodPost, "/system/myberkeley/testPersonProvision", url.Values{"userId": {"carol"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(f.router(repository.AdminID), http.MethodPost, "/system/myberkeley/testPersonProvision", url.Values{
		"userId": {"carol"}, "lastName": {"Christ"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode(t, rec)["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "Christ", results[0].(map[string]any)["lastName"])

	rec = do(f.router(""), http.MethodPost, "/system/myberkeley/testPersonProvision", url.Values{"firstName": {"Oski"}})
	require.Equal(t, http.StatusOK, rec.Code)
	results = decode(t, rec)["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "271592", results[0].(map[string]any)["rep:userId"])
}

func TestHandler_NoProvider(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, _, s := newTestService()
	h := NewHandler(s, nil, nil, discardLogger())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		auth.SetPrincipal(c, &auth.Principal{ID: repository.AdminID})
		c.Next()
	})
	h.Register(r)
	rec := do(r, http.MethodPost, "/system/myberkeley/personProvision", url.Values{"userIds": {"1"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
