package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"runclub-backend/models"

	"gorm.io/gorm"
)

const (
	stravaTokenURL      = "https://www.strava.com/api/v3/oauth/token"
	stravaActivitiesURL = "https://www.strava.com/api/v3/athlete/activities"
	stravaAuthorizeURL  = "https://www.strava.com/oauth/authorize"

	// Strava caps per_page at 200; a short page signals the end of data.
	stravaPageSize = 200

	// Refresh tokens that expire within this buffer.
	tokenExpiryBuffer = 60 * time.Second
)

// ErrNoStravaConnection is returned for members who never linked Strava.
var ErrNoStravaConnection = errors.New("no strava connection for user")

// TokenRefreshError is fatal for one account's sync pass: the stored refresh
// token was rejected or the provider was unreachable.
type TokenRefreshError struct {
	UserID string
	Err    error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("strava token refresh failed for user %s: %v", e.UserID, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// ProviderFetchError is fatal for one account's sync pass: a non-success
// response from the activities endpoint.
type ProviderFetchError struct {
	Status int
	Body   string
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("strava activities fetch failed: %d %s", e.Status, e.Body)
}

// StravaConfig carries the OAuth app credentials. Read from the environment
// once in main and passed down; nothing below main touches env vars.
type StravaConfig struct {
	ClientID     string
	ClientSecret string
}

// StravaActivity is the typed shape of one activity from the provider.
// Decoding is fail-closed: records without a positive id are rejected at
// this boundary instead of being coerced downstream.
type StravaActivity struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Type               string     `json:"type"`
	SportType          string     `json:"sport_type"`
	Distance           float64    `json:"distance"`    // meters
	MovingTime         int        `json:"moving_time"` // seconds
	ElapsedTime        int        `json:"elapsed_time"`
	AverageHeartrate   *float64   `json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64   `json:"max_heartrate,omitempty"`
	AverageCadence     *float64   `json:"average_cadence,omitempty"`
	TotalElevationGain *float64   `json:"total_elevation_gain,omitempty"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	StartDateLocal     *time.Time `json:"start_date_local,omitempty"`
	Timezone           *string    `json:"timezone,omitempty"`
	WorkoutType        *int       `json:"workout_type,omitempty"`
	Map                *struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map,omitempty"`
}

// IsRun reports whether the activity is a qualifying locomotion type.
func (a *StravaActivity) IsRun() bool {
	switch a.Type {
	case "Run", "Walk":
		return true
	}
	switch a.SportType {
	case "Run", "Walk":
		return true
	}
	return false
}

// IsRace reports whether Strava flagged the activity as a race.
func (a *StravaActivity) IsRace() bool {
	return a.WorkoutType != nil && *a.WorkoutType == 1
}

// StravaTokens is the provider's token-refresh/exchange response.
type StravaTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Athlete      *struct {
		ID        int64  `json:"id"`
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
	} `json:"athlete,omitempty"`
}

// StravaClient talks to the Strava REST API and keeps the stored tokens on
// the profile row fresh.
type StravaClient struct {
	DB         *gorm.DB
	Config     StravaConfig
	HTTPClient *http.Client

	// Overridable in tests.
	TokenURL      string
	ActivitiesURL string
}

func NewStravaClient(db *gorm.DB, cfg StravaConfig) *StravaClient {
	return &StravaClient{
		DB:     db,
		Config: cfg,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		TokenURL:      stravaTokenURL,
		ActivitiesURL: stravaActivitiesURL,
	}
}

// AuthorizeURL builds the OAuth consent URL for the connect flow.
func (c *StravaClient) AuthorizeURL(redirectURI, state string) string {
	params := url.Values{}
	params.Set("client_id", c.Config.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "activity:read_all")
	params.Set("state", state)
	return stravaAuthorizeURL + "?" + params.Encode()
}

// ExchangeCode trades an OAuth authorization code for tokens.
func (c *StravaClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*StravaTokens, error) {
	return c.tokenRequest(ctx, map[string]string{
		"client_id":     c.Config.ClientID,
		"client_secret": c.Config.ClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
		"redirect_uri":  redirectURI,
	})
}

// RefreshToken returns a valid access token for the profile, refreshing and
// persisting tokens when the stored one expires within 60 seconds. The
// profile struct is updated in place on refresh.
func (c *StravaClient) RefreshToken(ctx context.Context, profile *models.Profile) (string, error) {
	if profile.StravaRefreshToken == "" {
		return "", ErrNoStravaConnection
	}

	now := time.Now().Unix()
	if profile.StravaTokenExpiresAt > now+int64(tokenExpiryBuffer.Seconds()) {
		return profile.StravaAccessToken, nil
	}

	tokens, err := c.tokenRequest(ctx, map[string]string{
		"client_id":     c.Config.ClientID,
		"client_secret": c.Config.ClientSecret,
		"refresh_token": profile.StravaRefreshToken,
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return "", &TokenRefreshError{UserID: profile.ID, Err: err}
	}

	if err := c.DB.Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]interface{}{
			"strava_access_token":     tokens.AccessToken,
			"strava_refresh_token":    tokens.RefreshToken,
			"strava_token_expires_at": tokens.ExpiresAt,
		}).Error; err != nil {
		return "", &TokenRefreshError{UserID: profile.ID, Err: fmt.Errorf("persist tokens: %w", err)}
	}

	profile.StravaAccessToken = tokens.AccessToken
	profile.StravaRefreshToken = tokens.RefreshToken
	profile.StravaTokenExpiresAt = tokens.ExpiresAt

	return tokens.AccessToken, nil
}

func (c *StravaClient) tokenRequest(ctx context.Context, payload map[string]string) (*StravaTokens, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(errBody))
	}

	var tokens StravaTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, errors.New("token endpoint returned empty access token")
	}
	return &tokens, nil
}

// FetchActivities pages through the athlete's activities between the two
// unix timestamps, 200 per page, until a short page ends the stream.
// Malformed records (no id) are dropped at this boundary.
func (c *StravaClient) FetchActivities(ctx context.Context, accessToken string, after, before int64) ([]StravaActivity, error) {
	var all []StravaActivity

	for page := 1; ; page++ {
		u, err := url.Parse(c.ActivitiesURL)
		if err != nil {
			return nil, fmt.Errorf("invalid activities URL: %w", err)
		}
		q := u.Query()
		q.Set("after", strconv.FormatInt(after, 10))
		q.Set("before", strconv.FormatInt(before, 10))
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(stravaPageSize))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create activities request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("activities request failed: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			return nil, &ProviderFetchError{Status: resp.StatusCode, Body: string(errBody)}
		}

		var items []StravaActivity
		decodeErr := json.NewDecoder(resp.Body).Decode(&items)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode activities page %d: %w", page, decodeErr)
		}

		for _, a := range items {
			if a.ID <= 0 {
				log.Printf("[STRAVA] ⚠️ Dropping malformed activity record (missing id) on page %d", page)
				continue
			}
			all = append(all, a)
		}

		if len(items) < stravaPageSize {
			break
		}
	}

	return all, nil
}
