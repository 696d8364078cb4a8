package loadgen

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status429     int64
	Status5xx     int64
}

type target struct {
	method string
	path   string
	body   string
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	targets := targetsForProfile(cfg.Profile)
	if len(targets) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var res Result
	jobs := make(chan target, cfg.Concurrency*2)
	var wg sync.WaitGroup
	for range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				code, err := send(ctx, client, baseURL, t)
				if err != nil {
					atomic.AddInt64(&res.Failures, 1)
					continue
				}
				atomic.AddInt64(&res.TotalRequests, 1)
				switch {
				case code >= 200 && code < 300:
					atomic.AddInt64(&res.Status2xx, 1)
				case code == http.StatusTooManyRequests:
					atomic.AddInt64(&res.Status429, 1)
					atomic.AddInt64(&res.Status4xx, 1)
				case code >= 400 && code < 500:
					atomic.AddInt64(&res.Status4xx, 1)
				case code >= 500:
					atomic.AddInt64(&res.Status5xx, 1)
				}
			}
		}()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return res, nil
		case <-ticker.C:
			select {
			case jobs <- targets[rng.Intn(len(targets))]:
			case <-ctx.Done():
			}
		}
	}
}

func send(ctx context.Context, client *http.Client, baseURL string, t target) (int, error) {
	var body io.Reader
	if t.body != "" {
		body = strings.NewReader(t.body)
	}
	req, err := http.NewRequestWithContext(ctx, t.method, baseURL+t.path, body)
	if err != nil {
		return 0, err
	}
	if t.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// targetsForProfile never carries valid credentials, so auth endpoints
// answer with 4xx and exercise the guard and rate limiter paths.
func targetsForProfile(profile string) []target {
	me := target{method: http.MethodGet, path: "/api/auth/me"}
	ready := target{method: http.MethodGet, path: "/health/ready"}
	botRequest := target{method: http.MethodPost, path: "/api/auth/telegram/requests"}
	badLogin := target{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"loadgen@example.com","password":"wrong-password"}`}
	badTelegram := target{method: http.MethodPost, path: "/api/auth/telegram/login", body: `{"id":"1","auth_date":"1","hash":"00"}`}
	unknownRID := target{method: http.MethodGet, path: "/api/auth/telegram/requests/loadgen-unknown"}

	switch strings.ToLower(profile) {
	case "", "mixed":
		return []target{me, ready, botRequest, badLogin, badTelegram}
	case "auth":
		return []target{badLogin, badTelegram, botRequest}
	case "error-heavy":
		return []target{badLogin, badTelegram, unknownRID}
	default:
		return nil
	}
}
