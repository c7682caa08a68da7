package yandex

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultIAMURL    = "https://iam.api.cloud.yandex.net/iam/v1/tokens"
	DefaultVisionURL = "https://vision.api.cloud.yandex.net/vision/v1/batchAnalyze"
	DefaultTimeout   = 60 * time.Second
)

var DefaultLanguages = []string{"en", "ru"}

// Config holds the endpoints and credentials for the Vision API.
type Config struct {
	IAMURL     string
	VisionURL  string
	FolderID   string
	OAuthToken string
	Languages  []string
	Timeout    time.Duration
}

// ConfigFromEnv reads YC_OAUTH_TOKEN, YC_FOLDER_ID and the optional
// YC_IAM_URL, YC_VISION_URL and YC_LANGUAGES (comma separated), falling back
// to the public endpoints.
func ConfigFromEnv() Config {
	cfg := Config{
		IAMURL:     os.Getenv("YC_IAM_URL"),
		VisionURL:  os.Getenv("YC_VISION_URL"),
		FolderID:   os.Getenv("YC_FOLDER_ID"),
		OAuthToken: os.Getenv("YC_OAUTH_TOKEN"),
		Timeout:    DefaultTimeout,
	}
	if cfg.IAMURL == "" {
		cfg.IAMURL = DefaultIAMURL
	}
	if cfg.VisionURL == "" {
		cfg.VisionURL = DefaultVisionURL
	}
	if langs := os.Getenv("YC_LANGUAGES"); langs != "" {
		for _, l := range strings.Split(langs, ",") {
			if l = strings.TrimSpace(l); l != "" {
				cfg.Languages = append(cfg.Languages, l)
			}
		}
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}
	return cfg
}

func (c Config) Validate() error {
	if c.OAuthToken == "" {
		return errors.New("YC_OAUTH_TOKEN environment variable not set")
	}
	if c.FolderID == "" {
		return errors.New("YC_FOLDER_ID environment variable not set")
	}
	if c.IAMURL == "" || c.VisionURL == "" {
		return errors.New("IAM and Vision endpoints must be set")
	}
	return nil
}
