package training

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

var ErrTrainingFailed = errors.New("training: model training failed")

const defaultTrainTimeout = 30 * time.Minute

// Trainer drives the NLU service's training endpoint. Training is a long
// synchronous call; the service streams the corpus in and answers when
// the new model is loadable.
type Trainer struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewTrainer(baseURL string, timeout time.Duration, logger *logging.Logger) *Trainer {
	if baseURL == "" {
		panic("training: trainer base URL cannot be empty")
	}
	if timeout <= 0 {
		timeout = defaultTrainTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Trainer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type trainRequest struct {
	ModelVersion string          `json:"modelVersion"`
	Corpus       json.RawMessage `json:"corpus"`
}

type trainResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"modelVersion"`
	Error        string `json:"error,omitempty"`
}

// Train submits a corpus and blocks until the trainer finishes. The
// returned version is the one the service actually registered.
func (t *Trainer) Train(ctx context.Context, modelVersion string, corpus []byte) (string, error) {
	body, err := json.Marshal(trainRequest{ModelVersion: modelVersion, Corpus: corpus})
	if err != nil {
		return "", fmt.Errorf("training: encode train request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/model/train", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("training: build train request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTrainingFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrTrainingFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: trainer returned status %d: %s", ErrTrainingFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed trainResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTrainingFailed, err)
	}
	if parsed.Status != "trained" {
		return "", fmt.Errorf("%w: status %q: %s", ErrTrainingFailed, parsed.Status, parsed.Error)
	}
	version := parsed.ModelVersion
	if version == "" {
		version = modelVersion
	}

	t.logger.Info("model training finished",
		"model_version", version,
		"duration_s", time.Since(start).Seconds(),
	)
	return version, nil
}
