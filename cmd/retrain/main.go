package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

// Triggers a retraining run through the admin API and follows the job
// until it settles. Meant for cron and for operators kicking off a run
// by hand.
func main() {
	_ = godotenv.Load()

	var (
		baseURL = flag.String("api", envOr("API_BASE_URL", "http://localhost:8080"), "API base URL")
		secret  = flag.String("secret", os.Getenv("ADMIN_JWT_SECRET"), "admin JWT signing secret")
		wait    = flag.Bool("wait", true, "poll the job until it completes")
		timeout = flag.Duration("timeout", 30*time.Minute, "maximum time to wait for completion")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		log.Fatal("admin JWT secret is required (ADMIN_JWT_SECRET or -secret)")
	}

	token, err := mintToken(*secret, *timeout)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	api := strings.TrimRight(*baseURL, "/")

	jobID, err := trigger(client, api, token)
	if err != nil {
		log.Fatalf("trigger retraining: %v", err)
	}
	fmt.Printf("retraining started, job %s\n", jobID)

	if !*wait {
		return
	}

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		time.Sleep(10 * time.Second)

		job, err := getJob(client, api, token, jobID)
		if err != nil {
			log.Printf("poll job: %v", err)
			continue
		}
		switch job.Status {
		case "running":
			fmt.Printf("job %s: %s (%s)\n", jobID, job.Status, job.Stage)
		case "completed":
			fmt.Printf("job %s completed: model %s, accuracy %.3f over %d data points\n",
				jobID, job.ModelVersion, job.Accuracy, job.DataPoints)
			return
		case "skipped":
			fmt.Printf("job %s skipped: %s\n", jobID, job.ErrorMessage)
			return
		default:
			log.Fatalf("job %s failed: %s", jobID, job.ErrorMessage)
		}
	}
	log.Fatalf("job %s did not finish within %s", jobID, *timeout)
}

func mintToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "retrain-cli",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl + time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func trigger(client *http.Client, api, token string) (string, error) {
	payload := strings.NewReader(`{"triggerSource":"cli"}`)
	req, err := http.NewRequest(http.MethodPost, api+"/admin/retrain", payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
	case http.StatusConflict:
		return "", fmt.Errorf("a retraining run is already in progress")
	default:
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return body.JobID, nil
}

type jobView struct {
	Status       string  `json:"status"`
	Stage        string  `json:"stage"`
	ModelVersion string  `json:"modelVersion"`
	DataPoints   int     `json:"dataPoints"`
	Accuracy     float64 `json:"accuracy"`
	ErrorMessage string  `json:"errorMessage"`
}

func getJob(client *http.Client, api, token, jobID string) (*jobView, error) {
	req, err := http.NewRequest(http.MethodGet, api+"/admin/retrain/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var job jobView
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
