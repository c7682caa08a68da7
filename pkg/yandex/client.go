// Package yandex is a client for the Yandex Cloud Vision text detection API.
package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"

	"github.com/lehigh-university-libraries/textdet/internal/utils"
)

const maxErrorBody = 500

type Client struct {
	config Config
	http   *http.Client
}

// New returns a client for cfg. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{config: cfg, http: httpClient}
}

// IAMToken exchanges the OAuth token for a short lived IAM token.
func (c *Client) IAMToken(ctx context.Context) (string, error) {
	body := map[string]string{"yandexPassportOauthToken": c.config.OAuthToken}

	var out struct {
		IAMToken string `json:"iamToken"`
	}
	if err := c.postJSON(ctx, c.config.IAMURL, "", body, &out); err != nil {
		return "", errors.Wrap(err, "request IAM token")
	}
	if out.IAMToken == "" {
		return "", errors.New("no iamToken in IAM response")
	}
	return out.IAMToken, nil
}

type analyzeRequest struct {
	FolderID     string        `json:"folderId"`
	AnalyzeSpecs []analyzeSpec `json:"analyzeSpecs"`
}

type analyzeSpec struct {
	Content  string    `json:"content"`
	Features []feature `json:"features"`
}

type feature struct {
	Type                string              `json:"type"`
	TextDetectionConfig textDetectionConfig `json:"textDetectionConfig"`
}

type textDetectionConfig struct {
	LanguageCodes []string `json:"languageCodes"`
}

// Analyze runs text detection on a base64 encoded image.
func (c *Client) Analyze(ctx context.Context, iamToken, imageBase64 string) (*Response, error) {
	req := analyzeRequest{
		FolderID: c.config.FolderID,
		AnalyzeSpecs: []analyzeSpec{{
			Content: imageBase64,
			Features: []feature{{
				Type:                "TEXT_DETECTION",
				TextDetectionConfig: textDetectionConfig{LanguageCodes: c.config.Languages},
			}},
		}},
	}

	var resp Response
	if err := c.postJSON(ctx, c.config.VisionURL, iamToken, req, &resp); err != nil {
		return nil, errors.Wrap(err, "analyze image")
	}
	for _, r := range resp.Results {
		if r.Error != nil {
			return nil, errors.Errorf("vision API error %d: %s", r.Error.Code, r.Error.Message)
		}
		for _, fr := range r.Results {
			if fr.Error != nil {
				return nil, errors.Errorf("text detection error %d: %s", fr.Error.Code, fr.Error.Message)
			}
		}
	}
	return &resp, nil
}

// Recognize reads the image at imagePath, fetches an IAM token and runs
// text detection on it.
func (c *Client) Recognize(ctx context.Context, imagePath string) (*Response, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}

	token, err := c.IAMToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.Analyze(ctx, token, base64.StdEncoding.EncodeToString(data))
}

func (c *Client) postJSON(ctx context.Context, url, bearer string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.MaskSensitiveError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return utils.MaskSensitiveError(errors.Errorf("yandex API error: %d - %s", resp.StatusCode, truncate(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "... (truncated)"
	}
	return s
}
