// Package classifier is the HTTP client for the external tomato leaf
// image classification service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leafwise/tomatodoc/internal/domain"
	"github.com/leafwise/tomatodoc/internal/domain/bridge"
)

// NoLeafClass is returned by the classifier when the uploaded image
// does not contain a recognizable tomato leaf.
const NoLeafClass = "No leaf detected"

// Prediction is the classification outcome for one uploaded image,
// already passed through the label bridge.
type Prediction struct {
	ClassName  string  `json:"className"`
	KBSlug     string  `json:"kbSlug,omitempty"`
	HumanName  string  `json:"humanName"`
	Confidence float64 `json:"confidence"` // percentage, rounded by the service
	Message    string  `json:"message,omitempty"`
}

// LeafDetected reports whether the image contained a tomato leaf.
func (p Prediction) LeafDetected() bool {
	return p.ClassName != NoLeafClass
}

// defaultMinConfidence is the percentage below which a prediction is
// treated as no leaf detected.
const defaultMinConfidence = 70.0

// Client calls the external classification service.
type Client struct {
	baseURL       string
	http          *http.Client
	minConfidence float64
	logger        *zap.Logger
}

// Config holds the classifier service settings.
type Config struct {
	URL           string
	Timeout       time.Duration
	MinConfidence float64 // percentage; 0 selects the default
	Logger        *zap.Logger
}

// New creates a classifier client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	minConfidence := cfg.MinConfidence
	if minConfidence <= 0 {
		minConfidence = defaultMinConfidence
	}

	return &Client{
		baseURL:       cfg.URL,
		http:          &http.Client{Timeout: timeout},
		minConfidence: minConfidence,
		logger:        cfg.Logger,
	}
}

// predictResponse mirrors the classification service response body.
// The service applies its confidence threshold before answering, so a
// low-confidence image arrives as the no-leaf class with a guidance
// message.
type predictResponse struct {
	ClassName  string  `json:"className"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

// Classify uploads image bytes and returns the prediction with
// knowledge-base mapping applied.
func (c *Client) Classify(ctx context.Context, filename string, image []byte) (Prediction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Prediction{}, fmt.Errorf("build multipart body: %v: %w", err, domain.ErrClassifier)
	}
	if _, err := part.Write(image); err != nil {
		return Prediction{}, fmt.Errorf("build multipart body: %v: %w", err, domain.ErrClassifier)
	}
	if err := mw.Close(); err != nil {
		return Prediction{}, fmt.Errorf("build multipart body: %v: %w", err, domain.ErrClassifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &body)
	if err != nil {
		return Prediction{}, fmt.Errorf("build request: %v: %w", err, domain.ErrClassifier)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier request failed: %v: %w", err, domain.ErrClassifier)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Prediction{}, fmt.Errorf("classifier returned %d: %s: %w",
			resp.StatusCode, bytes.TrimSpace(payload), domain.ErrClassifier)
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Prediction{}, fmt.Errorf("decode classifier response: %v: %w", err, domain.ErrClassifier)
	}
	if parsed.ClassName == "" {
		return Prediction{}, fmt.Errorf("classifier response missing class name: %w", domain.ErrClassifier)
	}

	if c.logger != nil {
		c.logger.Debug("image classified",
			zap.String("class", parsed.ClassName),
			zap.Float64("confidence", parsed.Confidence),
			zap.Duration("duration", time.Since(start)))
	}

	// Leaf classes below the confidence threshold count as no
	// detection, regardless of what the service decided.
	if parsed.ClassName != NoLeafClass && parsed.Confidence < c.minConfidence {
		return Prediction{
			ClassName: NoLeafClass,
			HumanName: NoLeafClass,
			Message:   "Please upload a new photo with all leaf parts.",
		}, nil
	}

	pred := Prediction{
		ClassName:  parsed.ClassName,
		HumanName:  parsed.ClassName,
		Confidence: parsed.Confidence,
		Message:    parsed.Message,
	}
	if slug, ok := bridge.ToKBID(parsed.ClassName); ok {
		pred.KBSlug = slug
		pred.HumanName = bridge.ToHumanName(slug)
	}
	return pred, nil
}

// HealthCheck probes the classification service.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("classifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classifier health returned %d", resp.StatusCode)
	}
	return nil
}
