package handlers_test

import (
	"appcommerce/app"
	"appcommerce/authapi"
	"appcommerce/blobstore"
	"appcommerce/config/setup"
	"appcommerce/database"
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"appcommerce/services"
	"appcommerce/session"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5000

type testEnv struct {
	store *docstore.Memory
	blobs *blobstore.Memory
	app   *fiber.App
}

// fakeIdentity answers the three identity toolkit operations. Any password
// other than "secret1" is rejected, and taken@example.com already exists.
func fakeIdentity(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		email, _ := body["email"].(string)
		password, _ := body["password"].(string)

		fail := func(msg string) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": msg}})
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "accounts:signInWithPassword"):
			if password != "secret1" {
				fail("INVALID_LOGIN_CREDENTIALS")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"localId": "u1", "idToken": "tok-u1", "email": email})
		case strings.HasSuffix(r.URL.Path, "accounts:signUp"):
			if email == "taken@example.com" {
				fail("EMAIL_EXISTS")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"localId": "u2", "idToken": "tok-u2", "email": email})
		case strings.HasSuffix(r.URL.Path, "accounts:sendOobCode"):
			_ = json.NewEncoder(w).Encode(map[string]any{"email": email, "kind": "identitytoolkit#GetOobConfirmationCodeResponse"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEnv(t *testing.T, store docstore.Store) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	mem, _ := store.(*docstore.Memory)
	if store == nil {
		mem = docstore.NewMemory()
		store = mem
	}

	blobs := blobstore.NewMemory("")
	blobSrv := httptest.NewServer(blobs.Handler())
	t.Cleanup(blobSrv.Close)
	blobs.BaseURL = blobSrv.URL

	loader, err := imagecache.NewLoader("", 0, blobSrv.Client(), logger)
	require.NoError(t, err)

	auth := authapi.NewClient(fakeIdentity(t).URL+"/", "test-key")

	catalog := services.NewCatalogService(store, blobs, loader, logger)
	accounts := services.NewAccountService(store, auth, blobs, loader, database.NewPreferences(db), logger)
	application := app.New(catalog, accounts, session.NewStore(), logger)

	fiberApp := setup.NewFiberApp(true, logger)
	setup.ApplyMiddleware(fiberApp, "*", logger)
	setup.RegisterRoutes(fiberApp, application)

	return &testEnv{store: mem, blobs: blobs, app: fiberApp}
}

func seedCatalog(t *testing.T, store *docstore.Memory) {
	t.Helper()
	require.NoError(t, store.Seed("product_categories/cat1", map[string]any{
		"name": "Shoes", "featured": true,
		"products": []string{"products/p2", "products/p1"},
	}))
	require.NoError(t, store.Seed("product_categories/cat2", map[string]any{"name": "Hats"}))
	require.NoError(t, store.Seed("products/p1", map[string]any{"name": "Runner", "price": 99.9, "featured": true, "thumbnail": "thumb.png"}))
	require.NoError(t, store.Seed("products/p2", map[string]any{"name": "Walker", "price": 59.0}))
	require.NoError(t, store.Seed("products/p1/colors/c1", map[string]any{"name": "Red", "code": "#f00"}))
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, testTimeout)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) signIn(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/signin", map[string]string{"email": "ana@example.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode(t, resp)["status"])
}

func TestListCategories(t *testing.T) {
	env := newTestEnv(t, nil)
	seedCatalog(t, env.store)

	tests := []struct {
		name  string
		path  string
		names []string
	}{
		{"all", "/api/categories", []string{"Shoes", "Hats"}},
		{"featured", "/api/categories?featured=true", []string{"Shoes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, nil, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			cats := decode(t, resp)["categories"].([]any)
			var names []string
			for _, c := range cats {
				names = append(names, c.(map[string]any)["name"].(string))
			}
			assert.ElementsMatch(t, tt.names, names)
		})
	}
}

// resettingStore delivers one snapshot and then fails the subscription
type resettingStore struct {
	*docstore.Memory
}

func (s resettingStore) Subscribe(ctx context.Context, q docstore.Query, fn docstore.Listener) (func(), error) {
	stop, err := s.Memory.Subscribe(ctx, q, fn)
	if err != nil {
		return nil, err
	}
	go fn(nil, errors.New("subscription reset"))
	return stop, nil
}

func TestStreamCategories_EndsWithErrorEvent(t *testing.T) {
	mem := docstore.NewMemory()
	seedCatalog(t, mem)
	env := newTestEnv(t, resettingStore{Memory: mem})

	resp := env.do(t, http.MethodGet, "/api/categories/stream", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "event: error")
	assert.Contains(t, string(data), "subscription reset")
}

func TestListCategoryProducts(t *testing.T) {
	env := newTestEnv(t, nil)
	seedCatalog(t, env.store)

	// Not read yet, so the cache-only lookup misses
	resp := env.do(t, http.MethodGet, "/api/categories/cat1/products", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, err := env.store.Get(context.Background(), "product_categories/cat1")
	require.NoError(t, err)

	resp = env.do(t, http.MethodGet, "/api/categories/cat1/products", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	products := decode(t, resp)["products"].([]any)
	require.Len(t, products, 2)
	assert.Equal(t, "Walker", products[0].(map[string]any)["name"])
	assert.Equal(t, "Runner", products[1].(map[string]any)["name"])
}

func TestListFeaturedProducts(t *testing.T) {
	env := newTestEnv(t, nil)
	seedCatalog(t, env.store)

	resp := env.do(t, http.MethodGet, "/api/products/featured", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	products := decode(t, resp)["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].(map[string]any)["id"])
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t, nil)
	seedCatalog(t, env.store)

	resp := env.do(t, http.MethodGet, "/api/products/p1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Runner", body["product"].(map[string]any)["name"])
	assert.Len(t, body["colors"], 1)
	assert.ElementsMatch(t, []any{"product", "colors", "sizes", "images"}, body["loaded"])

	resp = env.do(t, http.MethodGet, "/api/products/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProductImages(t *testing.T) {
	env := newTestEnv(t, nil)
	seedCatalog(t, env.store)
	img := imagecache.Solid("thumb", 2, 2, color.White)
	thumb, err := blobstore.ProductImagePath("p1", "thumb.png")
	require.NoError(t, err)
	_, err = env.blobs.Upload(context.Background(), thumb, bytes.NewReader(img.Data))
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		status int
		source string
	}{
		{"stored image", "/api/products/p1/images/thumb.png", http.StatusOK, "remote"},
		{"thumbnail", "/api/products/p1/thumbnail", http.StatusOK, "remote"},
		{"missing image", "/api/products/p1/images/nope.png", http.StatusNotFound, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, nil, "")
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.source, resp.Header.Get("X-Image-Source"))
			assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		path   string
		body   map[string]string
		status int
	}{
		{"signin ok", "/api/auth/signin", map[string]string{"email": "ana@example.com", "password": "secret1"}, http.StatusOK},
		{"signin wrong password", "/api/auth/signin", map[string]string{"email": "ana@example.com", "password": "nope12"}, http.StatusUnauthorized},
		{"signin missing email", "/api/auth/signin", map[string]string{"password": "secret1"}, http.StatusBadRequest},
		{"signup ok", "/api/auth/signup", map[string]string{"name": "Bia", "email": "bia@example.com", "password": "secret1"}, http.StatusCreated},
		{"signup taken", "/api/auth/signup", map[string]string{"name": "Bia", "email": "taken@example.com", "password": "secret1"}, http.StatusConflict},
		{"signup short password", "/api/auth/signup", map[string]string{"name": "Bia", "email": "bia@example.com", "password": "123"}, http.StatusBadRequest},
		{"reset password", "/api/auth/reset-password", map[string]string{"email": "ana@example.com"}, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, tt.path, tt.body, "")
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestSignIn_ValidationFields(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodPost, "/api/auth/signin", map[string]string{"email": "not-an-email"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Validation failed", body["error"])
	assert.NotEmpty(t, body["fields"])
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signIn(t)

	t.Run("requires a session", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/users/u1/profile", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects other users", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/users/u2/profile", nil, token)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("update then read", func(t *testing.T) {
		update := map[string]any{
			"name":  "Ana",
			"email": "ana@example.com",
			"addresses": []map[string]string{{
				"street": "Av. Paulista", "number": "1000", "city": "São Paulo", "state": "SP", "zip_code": "01310-100",
			}},
		}
		resp := env.do(t, http.MethodPut, "/api/users/u1/profile", update, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, http.MethodGet, "/api/users/u1/profile", nil, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		assert.Equal(t, "Ana", body["user"].(map[string]any)["name"])
		addresses := body["addresses"].([]any)
		require.Len(t, addresses, 1)
		assert.Equal(t, "Av. Paulista", addresses[0].(map[string]any)["street"])
	})

	t.Run("invalid zip code", func(t *testing.T) {
		update := map[string]any{
			"name": "Ana", "email": "ana@example.com",
			"addresses": []map[string]string{{"street": "x", "number": "1", "city": "y", "state": "z", "zip_code": "abc"}},
		}
		resp := env.do(t, http.MethodPut, "/api/users/u1/profile", update, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("default image before upload", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/users/u1/image", nil, token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "fallback", resp.Header.Get("X-Image-Source"))
	})

	t.Run("upload image", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("image", "me.png")
		require.NoError(t, err)
		_, err = part.Write(imagecache.Solid("me", 3, 3, color.Black).Data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/users/u1/image", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := env.app.Test(req, testTimeout)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, blobstore.ProfileImagePath("u1"), decode(t, resp)["path"])

		resp = env.do(t, http.MethodGet, "/api/users/u1/image", nil, token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "remote", resp.Header.Get("X-Image-Source"))
	})

	t.Run("upload without file", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/users/u1/image", nil, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSignOut_EndsSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := env.signIn(t)

	resp = env.do(t, http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", decode(t, resp)["user_id"])

	resp = env.do(t, http.MethodPost, "/api/auth/signout", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/users/u1/profile", nil, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
