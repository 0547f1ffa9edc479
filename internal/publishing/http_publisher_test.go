package publishing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/postpilot-backend/internal/connections"
	"github.com/postpilot/postpilot-backend/pkg/config"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
)

type fakeCredentials struct {
	token string
	err   error
}

func (f fakeCredentials) Credential(_ context.Context, userID uuid.UUID, platform enums.Platform) (connections.Credential, error) {
	if f.err != nil {
		return connections.Credential{}, f.err
	}
	return connections.Credential{UserID: userID, Platform: platform, AccessToken: f.token}, nil
}

func newTestPublisher(t *testing.T, srv *httptest.Server, creds CredentialSource, mutate func(*HTTPPublisherConfig)) *HTTPPublisher {
	t.Helper()
	cfg := HTTPPublisherConfig{
		Platform:     enums.PlatformTwitter,
		BaseURL:      srv.URL + "/",
		Capabilities: CapabilityText | CapabilityImage,
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		BaseDelay:    time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	publisher, err := NewHTTPPublisher(cfg, creds, srv.Client(), nil)
	require.NoError(t, err)
	return publisher
}

func testRequest() Request {
	return Request{PostID: uuid.New(), UserID: uuid.New(), Platform: enums.PlatformTwitter, Caption: "ship it"}
}

func TestHTTPPublisherSuccess(t *testing.T) {
	req := testRequest()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, req.PostID.String()+":twitter", r.Header.Get("Idempotency-Key"))
		var body publishBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ship it", body.Caption)
		assert.Equal(t, req.PostID.String(), body.Reference)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tw-123","url":"https://x.test/tw-123"}`))
	}))
	defer srv.Close()

	outcome := newTestPublisher(t, srv, fakeCredentials{token: "tok-1"}, nil).Publish(context.Background(), req)
	require.True(t, outcome.Success, "%+v", outcome)
	assert.Equal(t, "tw-123", outcome.ExternalID())
	assert.Equal(t, "https://x.test/tw-123", outcome.URL())
	assert.Equal(t, enums.PlatformTwitter, outcome.Platform)
}

func TestHTTPPublisherRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"tw-9"}`))
	}))
	defer srv.Close()

	outcome := newTestPublisher(t, srv, fakeCredentials{token: "t"}, nil).Publish(context.Background(), testRequest())
	require.True(t, outcome.Success, "%+v", outcome)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPPublisherStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    enums.FailureKind
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"token revoked"}`, enums.FailureAuthExpired, "platform rejected credentials: token revoked"},
		{"forbidden", http.StatusForbidden, ``, enums.FailureAuthExpired, "platform rejected credentials"},
		{"rate limited", http.StatusTooManyRequests, ``, enums.FailureTransport, "rate limited"},
		{"server error", http.StatusServiceUnavailable, ``, enums.FailureTransport, "platform returned 503"},
		{"rejected", http.StatusUnprocessableEntity, `{"error":"duplicate status"}`, enums.FailureInvalidContent, "platform rejected post (422): duplicate status"},
		{"missing id", http.StatusOK, `{}`, enums.FailureTransport, "platform response missing post id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			outcome := newTestPublisher(t, srv, fakeCredentials{token: "t"}, nil).Publish(context.Background(), testRequest())
			require.False(t, outcome.Success)
			assert.Equal(t, tc.kind, outcome.Kind())
			assert.Equal(t, tc.message, outcome.Error())
		})
	}
}

func TestHTTPPublisherCredentialFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	notConnected := newTestPublisher(t, srv, fakeCredentials{err: pkgerrors.New(pkgerrors.CodeNotConnected, "twitter account not connected")}, nil)
	outcome := notConnected.Publish(context.Background(), testRequest())
	assert.Equal(t, enums.FailureNotConnected, outcome.Kind())
	assert.Equal(t, "twitter account not connected", outcome.Error())

	expired := newTestPublisher(t, srv, fakeCredentials{err: pkgerrors.New(pkgerrors.CodeAuthExpired, "twitter token expired")}, nil)
	assert.Equal(t, enums.FailureAuthExpired, expired.Publish(context.Background(), testRequest()).Kind())

	broken := newTestPublisher(t, srv, fakeCredentials{err: assert.AnError}, nil)
	assert.Equal(t, enums.FailureInternal, broken.Publish(context.Background(), testRequest()).Kind())

	assert.Zero(t, hits.Load())
}

func TestHTTPPublisherContentRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("content failures must not reach the platform")
	}))
	defer srv.Close()

	instagram := newTestPublisher(t, srv, fakeCredentials{token: "t"}, func(cfg *HTTPPublisherConfig) {
		cfg.Platform = enums.PlatformInstagram
		cfg.RequireImage = true
	})
	outcome := instagram.Publish(context.Background(), testRequest())
	assert.Equal(t, enums.FailureInvalidContent, outcome.Kind())
	assert.Equal(t, "instagram requires an image", outcome.Error())

	reddit := newTestPublisher(t, srv, fakeCredentials{token: "t"}, func(cfg *HTTPPublisherConfig) {
		cfg.Platform = enums.PlatformReddit
		cfg.RequireSubreddit = true
	})
	assert.Equal(t, "reddit requires a subreddit", reddit.Publish(context.Background(), testRequest()).Error())

	twitter := newTestPublisher(t, srv, fakeCredentials{token: "t"}, func(cfg *HTTPPublisherConfig) {
		cfg.MaxCaption = 5
	})
	assert.Equal(t, "caption exceeds 5 characters", twitter.Publish(context.Background(), testRequest()).Error())
}

func TestHTTPPublisherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	publisher := newTestPublisher(t, srv, fakeCredentials{token: "t"}, func(cfg *HTTPPublisherConfig) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.MaxRetries = 0
	})
	outcome := publisher.Publish(context.Background(), testRequest())
	require.False(t, outcome.Success)
	assert.Equal(t, enums.FailureTransport, outcome.Kind())
}

func TestNewHTTPPublisherValidation(t *testing.T) {
	_, err := NewHTTPPublisher(HTTPPublisherConfig{Platform: enums.PlatformTwitter}, fakeCredentials{}, nil, nil)
	require.Error(t, err)
	_, err = NewHTTPPublisher(HTTPPublisherConfig{Platform: enums.PlatformTwitter, BaseURL: "http://x"}, nil, nil, nil)
	require.Error(t, err)
}

func TestNewHTTPRegistryUsesConfiguredEndpoints(t *testing.T) {
	cfg := config.PublishersConfig{
		TwitterURL:   "https://gateway.test/twitter/",
		InstagramURL: "https://gateway.test/instagram",
		Timeout:      time.Second,
	}
	registry, err := NewHTTPRegistry(cfg, fakeCredentials{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []enums.Platform{enums.PlatformInstagram, enums.PlatformTwitter}, registry.Platforms())

	instagram, ok := registry.Resolve("Instagram")
	require.True(t, ok)
	assert.True(t, instagram.Capabilities().Has(CapabilityImage|CapabilitySchedule))

	_, ok = registry.Resolve("facebook")
	assert.False(t, ok)
}

func TestHTTPPublisherBreakerOpensAfterRepeatedServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	publisher := newTestPublisher(t, srv, fakeCredentials{token: "tok"}, func(cfg *HTTPPublisherConfig) {
		cfg.MaxRetries = 0
	})
	require.False(t, publisher.BreakerOpen())

	for i := 0; i < 10; i++ {
		outcome := publisher.Publish(context.Background(), testRequest())
		require.False(t, outcome.Success)
	}
	assert.True(t, publisher.BreakerOpen())

	registry, err := NewRegistry(publisher)
	require.NoError(t, err)
	health := registry.Health()
	require.Len(t, health, 1)
	assert.True(t, health[0].BreakerOpen)

	outcome := publisher.Publish(context.Background(), testRequest())
	require.False(t, outcome.Success)
	assert.Equal(t, enums.FailureTransport, outcome.Kind())
	assert.Equal(t, "platform unavailable (circuit open)", outcome.Error())
}

func TestHTTPPublisherForwardsPublishAt(t *testing.T) {
	at := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body publishBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.NotNil(t, body.PublishAt) {
			assert.True(t, at.Equal(*body.PublishAt))
		}
		_, _ = w.Write([]byte(`{"id":"fb-9"}`))
	}))
	defer srv.Close()

	publisher := newTestPublisher(t, srv, fakeCredentials{token: "tok"}, func(cfg *HTTPPublisherConfig) {
		cfg.Platform = enums.PlatformFacebook
		cfg.Capabilities = CapabilityText | CapabilitySchedule
	})
	req := testRequest()
	req.Platform = enums.PlatformFacebook
	req.PublishAt = &at
	outcome := publisher.Publish(context.Background(), req)
	require.True(t, outcome.Success, "%+v", outcome)
}
