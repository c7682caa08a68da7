package yandex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/textdet/pkg/detect"
)

const sampleResponse = `{
  "results": [{
    "results": [{
      "textDetection": {
        "pages": [{
          "width": "640",
          "height": "480",
          "blocks": [{
            "boundingBox": {"vertices": [{"x": "10", "y": "20"}, {"x": "10", "y": "60"}, {"x": "200", "y": "60"}, {"x": "200", "y": "20"}]},
            "lines": [{
              "boundingBox": {"vertices": [{"x": "10", "y": "20"}, {"x": "10", "y": "60"}, {"x": "200", "y": "60"}, {"x": "200", "y": "20"}]},
              "confidence": 0.98,
              "words": [
                {"boundingBox": {"vertices": [{"x": "10", "y": "20"}, {"x": "10", "y": "60"}, {"x": "90", "y": "60"}, {"x": "90", "y": "20"}]}, "text": "hello", "confidence": 0.99, "languages": [{"languageCode": "en", "confidence": 0.9}]},
                {"boundingBox": {"vertices": [{"y": "20"}, {"y": "60"}, {"x": "200", "y": "60"}, {"x": "200", "y": "20"}]}, "text": "world", "confidence": 0.97}
              ]
            }]
          }]
        }]
      }
    }]
  }]
}`

func newTestServer(t *testing.T, visionStatus int, visionBody string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var analyzed []map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/iam", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["yandexPassportOauthToken"] != "oauth-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"iamToken":"iam-token","expiresAt":"2026-01-01T00:00:00Z"}`))
	})
	mux.HandleFunc("/vision", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer iam-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		analyzed = append(analyzed, body)
		w.WriteHeader(visionStatus)
		_, _ = w.Write([]byte(visionBody))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &analyzed
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		IAMURL:     srv.URL + "/iam",
		VisionURL:  srv.URL + "/vision",
		FolderID:   "folder-1",
		OAuthToken: "oauth-secret",
		Languages:  []string{"en"},
	}
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img_1.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))
	return path
}

func TestRecognize(t *testing.T) {
	srv, analyzed := newTestServer(t, http.StatusOK, sampleResponse)
	client := New(testConfig(srv), srv.Client())

	resp, err := client.Recognize(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Len(t, *analyzed, 1)

	req := (*analyzed)[0]
	assert.Equal(t, "folder-1", req["folderId"])
	specs := req["analyzeSpecs"].([]any)
	require.Len(t, specs, 1)
	spec := specs[0].(map[string]any)
	assert.Equal(t, "ZmFrZSBpbWFnZSBieXRlcw==", spec["content"])
	feat := spec["features"].([]any)[0].(map[string]any)
	assert.Equal(t, "TEXT_DETECTION", feat["type"])
	assert.Equal(t, []any{"en"}, feat["textDetectionConfig"].(map[string]any)["languageCodes"])

	doc := Parse(resp)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, 640, doc.Pages[0].Width)
	assert.Equal(t, 480, doc.Pages[0].Height)

	words := doc.Words()
	require.Len(t, words, 2)
	assert.Equal(t, "hello", words[0].Text)
	assert.Equal(t, []string{"en"}, words[0].Languages)
	assert.Equal(t, 10, words[0].Box.X)
	assert.Equal(t, 20, words[0].Box.Y)
	assert.Equal(t, 80, words[0].Box.Width)
	assert.Equal(t, 40, words[0].Box.Height)
	// omitted x coordinates decode as zero
	assert.Equal(t, 0, words[1].Box.X)
	assert.Equal(t, 200, words[1].Box.Width)

	lines := doc.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "hello world", lines[0].Text())
	assert.Equal(t, 190, lines[0].Box.Width)
}

func TestRecognizeErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		oauth         string
		errorContains string
	}{
		{
			name:          "bad oauth token",
			status:        http.StatusOK,
			body:          sampleResponse,
			oauth:         "wrong",
			errorContains: "request IAM token",
		},
		{
			name:          "vision http error",
			status:        http.StatusForbidden,
			body:          `{"code":7,"message":"permission denied"}`,
			oauth:         "oauth-secret",
			errorContains: "403",
		},
		{
			name:          "per image error",
			status:        http.StatusOK,
			body:          `{"results":[{"error":{"code":3,"message":"bad image"}}]}`,
			oauth:         "oauth-secret",
			errorContains: "bad image",
		},
		{
			name:          "per feature error",
			status:        http.StatusOK,
			body:          `{"results":[{"results":[{"error":{"code":13,"message":"internal"}}]}]}`,
			oauth:         "oauth-secret",
			errorContains: "text detection error 13",
		},
		{
			name:          "invalid json",
			status:        http.StatusOK,
			body:          `not json`,
			oauth:         "oauth-secret",
			errorContains: "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.body)
			cfg := testConfig(srv)
			cfg.OAuthToken = tt.oauth

			_, err := New(cfg, srv.Client()).Recognize(context.Background(), writeImage(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestRecognizeMissingImage(t *testing.T) {
	srv, analyzed := newTestServer(t, http.StatusOK, sampleResponse)
	_, err := New(testConfig(srv), srv.Client()).Recognize(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, *analyzed)
}

func TestErrorBodyIsMaskedAndTruncated(t *testing.T) {
	long := `{"iamToken":"leaked"}` + string(make([]byte, 600))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(long))
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	_, err := New(cfg, srv.Client()).IAMToken(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "leaked")
	assert.Contains(t, err.Error(), "(truncated)")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("YC_OAUTH_TOKEN", "tok")
	t.Setenv("YC_FOLDER_ID", "folder")
	t.Setenv("YC_IAM_URL", "")
	t.Setenv("YC_VISION_URL", "http://localhost/vision")
	t.Setenv("YC_LANGUAGES", " de, fr ,,")

	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultIAMURL, cfg.IAMURL)
	assert.Equal(t, "http://localhost/vision", cfg.VisionURL)
	assert.Equal(t, []string{"de", "fr"}, cfg.Languages)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.NoError(t, cfg.Validate())

	t.Setenv("YC_LANGUAGES", "")
	t.Setenv("YC_FOLDER_ID", "")
	cfg = ConfigFromEnv()
	assert.Equal(t, DefaultLanguages, cfg.Languages)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YC_FOLDER_ID")
}

func TestIntDecoding(t *testing.T) {
	var v struct {
		A, B, C, D Int
	}
	require.NoError(t, json.Unmarshal([]byte(`{"A":"12","B":7,"C":"","D":null}`), &v))
	assert.Equal(t, Int(12), v.A)
	assert.Equal(t, Int(7), v.B)
	assert.Equal(t, Int(0), v.C)
	assert.Equal(t, Int(0), v.D)

	out, err := json.Marshal(Int(42))
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"A":"x"}`), &v))
}

func TestDetector(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, sampleResponse)
	cfg := testConfig(srv)
	d := &Detector{Config: &cfg}

	assert.Equal(t, "yandex", d.Name())
	require.NoError(t, d.ValidateConfig(detect.Config{Level: detect.LevelLine}))
	assert.Error(t, d.ValidateConfig(detect.Config{Level: "page"}))

	words, err := d.Detect(context.Background(), detect.Config{Level: detect.LevelWord}, writeImage(t))
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "world", words[1].Text)

	lines, err := d.Detect(context.Background(), detect.Config{Level: detect.LevelLine}, writeImage(t))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello world", lines[0].Text)
	assert.Equal(t, [8]int{10, 20, 200, 20, 200, 60, 10, 60}, lines[0].Box.Quad())
}

func TestDetectorValidateFromEnv(t *testing.T) {
	t.Setenv("YC_OAUTH_TOKEN", "")
	t.Setenv("YC_FOLDER_ID", "f")
	err := NewDetector().ValidateConfig(detect.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YC_OAUTH_TOKEN")
}
