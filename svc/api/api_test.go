package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipd/cfg"
	"clipd/svc/auth"
	"clipd/svc/cache"
	"clipd/svc/db"
	"clipd/svc/lim"
	"clipd/svc/svc"
	"clipd/svc/util"
)

func TestMain(m *testing.M) {
	util.InitLog("error", false)
	os.Exit(m.Run())
}

func createTestServer(t *testing.T) (*httptest.Server, *svc.Views) {
	t.Helper()
	c := &cfg.Cfg{
		Port:              "0",
		Environment:       "test",
		LogLevel:          "error",
		LRUCacheSize:      100,
		CacheTTL:          time.Hour,
		Argon2Time:        1,
		Argon2Memory:      8 * 1024,
		Argon2Parallelism: 1,
		Argon2KeyLen:      16,
		MaxClipSize:       1024 * 1024,
		CodeAttempts:      5,
		SweepInterval:     time.Second,
		RateLimitRPM:      60000,
		RateLimitBurst:    10000,
		ContextTimeout:    5 * time.Second,
	}
	sqlDB, err := db.NewSQLite(filepath.Join(t.TempDir(), "clips.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatalf("failed to create LRU: %v", err)
	}
	hasher, err := auth.NewHasher(c.Argon2Time, c.Argon2Memory, c.Argon2Parallelism, c.Argon2KeyLen)
	if err != nil {
		t.Fatalf("failed to create hasher: %v", err)
	}
	views := svc.NewViews(sqlDB)
	t.Cleanup(views.Stop)
	clips := svc.NewClips(sqlDB, lru, nil, hasher, views, c)
	limiter := lim.New(c.RateLimitRPM, c.RateLimitBurst)
	t.Cleanup(limiter.Stop)

	ts := httptest.NewServer(NewServer(c, clips, limiter, sqlDB, nil))
	t.Cleanup(ts.Close)
	return ts, views
}

func createClip(t *testing.T, ts *httptest.Server, body string) CreateResp {
	t.Helper()
	resp, err := http.Post(ts.URL+"/clips", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /clips failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, raw)
	}
	var created CreateResp
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return created
}

func getClip(t *testing.T, ts *httptest.Server, code, password string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/clips/"+code, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if password != "" {
		req.Header.Set(PasswordHeader, password)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /clips/%s failed: %v", code, err)
	}
	return resp
}

func TestCreateAndGetClip(t *testing.T) {
	ts, _ := createTestServer(t)

	created := createClip(t, ts, `{"content":"hello world","title":"greeting"}`)
	if created.ShortCode == "" {
		t.Fatal("missing short code in create response")
	}

	resp := getClip(t, ts, created.ShortCode, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var clip ClipResp
	if err := json.NewDecoder(resp.Body).Decode(&clip); err != nil {
		t.Fatalf("decode clip: %v", err)
	}
	if clip.Content != "hello world" {
		t.Errorf("content mismatch: %q", clip.Content)
	}
	if clip.Title != "greeting" {
		t.Errorf("title mismatch: %q", clip.Title)
	}
	if clip.PasswordProtected {
		t.Error("clip should not be password protected")
	}
}

func TestGetRawClip(t *testing.T) {
	ts, _ := createTestServer(t)
	content := "raw\ncontent — bytes must match exactly\n"
	payload, _ := json.Marshal(map[string]string{"content": content})
	created := createClip(t, ts, string(payload))

	resp, err := http.Get(ts.URL + "/clips/" + created.ShortCode + "/raw")
	if err != nil {
		t.Fatalf("GET raw failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != content {
		t.Fatalf("raw content mismatch:\ngot  %q\nwant %q", raw, content)
	}
}

func TestPasswordProtectedClip(t *testing.T) {
	ts, _ := createTestServer(t)
	created := createClip(t, ts, `{"content":"secret stuff","password":"123"}`)

	resp := getClip(t, ts, created.ShortCode, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no password: expected 401, got %d", resp.StatusCode)
	}

	resp = getClip(t, ts, created.ShortCode, "abc")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.StatusCode)
	}

	resp = getClip(t, ts, created.ShortCode, "123")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("correct password: expected 200, got %d", resp.StatusCode)
	}
	var clip ClipResp
	if err := json.NewDecoder(resp.Body).Decode(&clip); err != nil {
		t.Fatalf("decode clip: %v", err)
	}
	if clip.Content != "secret stuff" {
		t.Errorf("content mismatch: %q", clip.Content)
	}
	if !clip.PasswordProtected {
		t.Error("clip should report password protection")
	}
}

func TestCreateValidationErrors(t *testing.T) {
	ts, _ := createTestServer(t)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"empty content", `{"content":""}`, "CONTENT_REQUIRED"},
		{"past expiry", `{"content":"x","expires_at":"2001-01-01T00:00:00Z"}`, "INVALID_EXPIRY"},
		{"garbage expiry", `{"content":"x","expires_at":"whenever"}`, "INVALID_EXPIRY"},
		{"unknown field", `{"content":"x","bogus":true}`, "INVALID_REQUEST"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/clips", "application/json", bytes.NewBufferString(tc.body))
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			var errResp struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Error.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, errResp.Error.Code)
			}
		})
	}
}

func TestGetMissingClip(t *testing.T) {
	ts, _ := createTestServer(t)
	resp := getClip(t, ts, "nosuchclip", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := createTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCreateRejectsNonJSON(t *testing.T) {
	ts, _ := createTestServer(t)
	resp, err := http.Post(ts.URL+"/clips", "text/plain", bytes.NewBufferString("just text"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
