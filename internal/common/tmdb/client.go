// Package tmdb fetches movie credits and technical metadata from The Movie Database API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cinerank-workers/internal/common/config"
	commonhttp "cinerank-workers/internal/common/http"
	"cinerank-workers/internal/common/logger"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const breakerName = "tmdb-api"

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("tmdb circuit open")

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type CastCredit struct {
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order"`
}

type CrewCredit struct {
	Name        string `json:"name"`
	Job         string `json:"job"`
	Department  string `json:"department"`
	ProfilePath string `json:"profile_path"`
}

type Credits struct {
	Cast []CastCredit `json:"cast"`
	Crew []CrewCredit `json:"crew"`
}

type MovieDetails struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Runtime     int     `json:"runtime"`
	PosterPath  string  `json:"poster_path"`
	Genres      []Genre `json:"genres"`
	Credits     Credits `json:"credits"`
}

// Fetcher is the metadata collaborator contract: nil details mean no data is available.
type Fetcher interface {
	GetMovie(ctx context.Context, tmdbID int64) (*MovieDetails, error)
}

type Client struct {
	baseURL      string
	apiKey       string
	imageBaseURL string
	http         *commonhttp.Client
	cb           *gobreaker.CircuitBreaker[*MovieDetails]
	limiter      *rate.Limiter
	logger       logger.Logger
}

func NewClient(cfg config.TMDBConfig, log logger.Logger) *Client {
	log = log.WithFields(map[string]interface{}{"component": breakerName})

	cb := gobreaker.NewCircuitBreaker[*MovieDetails](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
		http: commonhttp.NewClient(config.GetDuration(cfg.Timeout),
			commonhttp.WithRetries(cfg.MaxRetries, 250*time.Millisecond)),
		cb:      cb,
		limiter: limiter,
		logger:  log,
	}
}

// GetMovie returns (nil, nil) when the movie does not exist upstream.
func (c *Client) GetMovie(ctx context.Context, tmdbID int64) (*MovieDetails, error) {
	details, err := c.cb.Execute(func() (*MovieDetails, error) {
		return c.fetch(ctx, tmdbID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return details, err
}

func (c *Client) fetch(ctx context.Context, tmdbID int64) (*MovieDetails, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tmdb movie %d: rate limit: %w", tmdbID, err)
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("append_to_response", "credits")
	endpoint := fmt.Sprintf("%s/movie/%d?%s", c.baseURL, tmdbID, q.Encode())

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tmdb movie %d: %w", tmdbID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tmdb movie %d: status %d", tmdbID, resp.StatusCode)
	}

	var details MovieDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("tmdb movie %d: decode: %w", tmdbID, err)
	}
	return &details, nil
}

// ImageURL joins a TMDB image path with the configured base. Empty paths stay empty.
func (c *Client) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	return c.imageBaseURL + "/" + strings.TrimLeft(path, "/")
}

// Year parses the release year from a YYYY-MM-DD date.
func (d *MovieDetails) Year() *int {
	if d == nil || len(d.ReleaseDate) < 4 {
		return nil
	}
	y, err := strconv.Atoi(d.ReleaseDate[:4])
	if err != nil || y <= 0 {
		return nil
	}
	return &y
}
