package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"runclub-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStravaClient(t *testing.T) *StravaClient {
	t.Helper()
	db := setupTestDB(t)
	return NewStravaClient(db, StravaConfig{ClientID: "123", ClientSecret: "secret"})
}

func seedConnectedProfile(t *testing.T, c *StravaClient, expiresAt int64) *models.Profile {
	t.Helper()
	stravaID := int64(777)
	profile := models.Profile{
		ID:                   uuid.NewString(),
		FullName:             "Test Runner",
		Email:                "runner@example.com",
		IsActive:             true,
		StravaID:             &stravaID,
		StravaAccessToken:    "old-access",
		StravaRefreshToken:   "old-refresh",
		StravaTokenExpiresAt: expiresAt,
	}
	require.NoError(t, c.DB.Create(&profile).Error)
	return &profile
}

func TestRefreshTokenSkipsWhenFresh(t *testing.T) {
	client := newTestStravaClient(t)

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()
	client.TokenURL = server.URL

	profile := seedConnectedProfile(t, client, time.Now().Add(1*time.Hour).Unix())

	token, err := client.RefreshToken(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, "old-access", token)
	assert.Equal(t, 0, calls, "fresh token must not hit the provider")
}

func TestRefreshTokenRefreshesNearExpiry(t *testing.T) {
	client := newTestStravaClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "refresh_token", payload["grant_type"])
		assert.Equal(t, "old-refresh", payload["refresh_token"])

		json.NewEncoder(w).Encode(StravaTokens{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresAt:    time.Now().Add(6 * time.Hour).Unix(),
		})
	}))
	defer server.Close()
	client.TokenURL = server.URL

	// 30s to expiry, inside the 60s buffer.
	profile := seedConnectedProfile(t, client, time.Now().Add(30*time.Second).Unix())

	token, err := client.RefreshToken(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.Equal(t, "new-refresh", profile.StravaRefreshToken)

	var stored models.Profile
	require.NoError(t, client.DB.First(&stored, "id = ?", profile.ID).Error)
	assert.Equal(t, "new-access", stored.StravaAccessToken)
	assert.Equal(t, "new-refresh", stored.StravaRefreshToken)
}

func TestRefreshTokenNoConnection(t *testing.T) {
	client := newTestStravaClient(t)

	profile := &models.Profile{ID: uuid.NewString()}
	_, err := client.RefreshToken(context.Background(), profile)
	assert.ErrorIs(t, err, ErrNoStravaConnection)
}

func TestRefreshTokenProviderRejection(t *testing.T) {
	client := newTestStravaClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad Request"}`, http.StatusBadRequest)
	}))
	defer server.Close()
	client.TokenURL = server.URL

	profile := seedConnectedProfile(t, client, 0)

	_, err := client.RefreshToken(context.Background(), profile)
	require.Error(t, err)

	var refreshErr *TokenRefreshError
	require.True(t, errors.As(err, &refreshErr))
	assert.Equal(t, profile.ID, refreshErr.UserID)

	// A failed refresh must not clobber the stored tokens.
	var stored models.Profile
	require.NoError(t, client.DB.First(&stored, "id = ?", profile.ID).Error)
	assert.Equal(t, "old-refresh", stored.StravaRefreshToken)
}

func TestFetchActivitiesPaginates(t *testing.T) {
	client := newTestStravaClient(t)

	var pagesRequested []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "200", r.URL.Query().Get("per_page"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pagesRequested = append(pagesRequested, page)

		var items []StravaActivity
		count := 3 // short page ends the stream
		if page == 1 {
			count = stravaPageSize
		}
		for i := 0; i < count; i++ {
			items = append(items, StravaActivity{
				ID:         int64((page-1)*stravaPageSize + i + 1),
				Type:       "Run",
				Distance:   5000,
				MovingTime: 1800,
			})
		}
		json.NewEncoder(w).Encode(items)
	}))
	defer server.Close()
	client.ActivitiesURL = server.URL

	got, err := client.FetchActivities(context.Background(), "token-1", 0, time.Now().Unix())
	require.NoError(t, err)
	assert.Len(t, got, stravaPageSize+3)
	assert.Equal(t, []int{1, 2}, pagesRequested)
}

func TestFetchActivitiesDropsMalformedRecords(t *testing.T) {
	client := newTestStravaClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 10, "type": "Run"}, {"type": "Run", "distance": 5000}, {"id": 11, "type": "Run"}]`)
	}))
	defer server.Close()
	client.ActivitiesURL = server.URL

	got, err := client.FetchActivities(context.Background(), "t", 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].ID)
	assert.Equal(t, int64(11), got[1].ID)
}

func TestFetchActivitiesProviderError(t *testing.T) {
	client := newTestStravaClient(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Rate Limit Exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()
	client.ActivitiesURL = server.URL

	_, err := client.FetchActivities(context.Background(), "t", 0, 1)
	require.Error(t, err)

	var fetchErr *ProviderFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.Status)
	assert.Contains(t, fetchErr.Body, "Rate Limit")
}

func TestIsRunAndIsRace(t *testing.T) {
	race := 1
	workout := 0

	assert.True(t, (&StravaActivity{Type: "Run"}).IsRun())
	assert.True(t, (&StravaActivity{SportType: "Walk"}).IsRun())
	assert.False(t, (&StravaActivity{Type: "Ride"}).IsRun())
	assert.True(t, (&StravaActivity{WorkoutType: &race}).IsRace())
	assert.False(t, (&StravaActivity{WorkoutType: &workout}).IsRace())
	assert.False(t, (&StravaActivity{}).IsRace())
}
