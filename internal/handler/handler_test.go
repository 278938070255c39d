package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-portal/internal/auth"
	"hr-portal/internal/model"
	"hr-portal/internal/service"
	"hr-portal/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrTaskNotFound, http.StatusNotFound},
		{service.ErrTaskAlreadyTaken, http.StatusConflict},
		{service.ErrBusy, http.StatusConflict},
		{service.ErrLevelTooLow, http.StatusForbidden},
		{service.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{service.ErrAttemptExpired, http.StatusUnprocessableEntity},
		{service.ErrBelowMinimum, http.StatusBadRequest},
		{service.ErrAmountPrecision, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrInsufficientBalance), http.StatusBadRequest},
		{service.ErrAlreadyReviewed, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeError(c, errors.New("connection refused at 10.0.0.5")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "internal server error", resp.Msg)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestParamID(t *testing.T) {
	r := gin.New()
	r.GET("/items/:id", func(c *gin.Context) {
		id, valid := paramID(c, "id")
		if !valid {
			return
		}
		ok(c, id)
	})

	for path, want := range map[string]int{
		"/items/42":  http.StatusOK,
		"/items/0":   http.StatusBadRequest,
		"/items/-1":  http.StatusBadRequest,
		"/items/abc": http.StatusBadRequest,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestQueryInt(t *testing.T) {
	r := gin.New()
	var got int
	r.GET("/q", func(c *gin.Context) { got = queryInt(c, "limit", 7) })

	for query, want := range map[string]int{"": 7, "?limit=3": 3, "?limit=x": 7} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/q"+query, nil))
		assert.Equal(t, want, got, query)
	}
}

func authRouter(tokens *auth.TokenManager) *gin.Engine {
	r := gin.New()
	r.GET("/me", Auth(tokens, auth.NewRevoker(nil)), func(c *gin.Context) {
		ok(c, gin.H{"user_id": currentUserID(c), "jti": currentClaims(c).ID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour, "hr-portal")
	r := authRouter(tokens)

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "missing authorization header", decode(t, w).Msg)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := auth.NewTokenManager("other-secret", time.Hour, "hr-portal")
		token, _, err := other.Issue(5)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, claims, err := tokens.Issue(5)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w).Data.(map[string]any)
		assert.EqualValues(t, 5, data["user_id"])
		assert.Equal(t, claims.ID, data["jti"])
	})
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, http.StatusInternalServerError, decode(t, w).Code)
}

type memStore struct {
	saved map[string][]byte
}

func (m *memStore) Save(_ context.Context, folder, filename string, r io.Reader, _ int64) (string, error) {
	if filename == "evil.exe" {
		return "", fmt.Errorf("%w: %q", storage.ErrUnsupportedType, ".exe")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := "/uploads/" + folder + "/" + filename
	m.saved[key] = data
	return key, nil
}

func multipartRequest(t *testing.T, fields map[string][]string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(name, v))
		}
	}
	for field, filename := range files {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("content of " + filename))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSaveUploads(t *testing.T) {
	store := &memStore{saved: map[string][]byte{}}
	r := gin.New()
	r.POST("/upload", func(c *gin.Context) {
		paths, err := saveUploads(c, store, "proofs", "files")
		if err != nil {
			writeUploadError(c, err)
			return
		}
		ok(c, gin.H{"paths": paths, "links": formLinks(c)})
	})

	t.Run("stores files and splits links", func(t *testing.T) {
		req := multipartRequest(t,
			map[string][]string{"links": {"https://a.example\nhttps://b.example", " "}},
			map[string]string{"files": "shot.png"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, []any{"/uploads/proofs/shot.png"}, data["paths"])
		assert.Equal(t, []any{"https://a.example", "https://b.example"}, data["links"])
		assert.Equal(t, []byte("content of shot.png"), store.saved["/uploads/proofs/shot.png"])
	})

	t.Run("rejected type is a bad request", func(t *testing.T) {
		req := multipartRequest(t, nil, map[string]string{"files": "evil.exe"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no files and no links", func(t *testing.T) {
		req := multipartRequest(t, map[string][]string{"proof_text": {"done"}}, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		data := decode(t, w).Data.(map[string]any)
		assert.Nil(t, data["paths"])
		assert.Nil(t, data["links"])
	})
}

func TestTaskRequestInput(t *testing.T) {
	in, err := taskRequest{Title: "Post a review"}.input()
	require.NoError(t, err)
	assert.Equal(t, model.LevelBasic, in.LevelRequired)
	assert.True(t, in.IsActive)

	inactive := false
	in, err = taskRequest{Title: "Gold only", LevelRequired: "GOLD", IsActive: &inactive}.input()
	require.NoError(t, err)
	assert.Equal(t, model.LevelGold, in.LevelRequired)
	assert.False(t, in.IsActive)

	_, err = taskRequest{Title: "Bad", LevelRequired: "diamond"}.input()
	assert.Error(t, err)
}
