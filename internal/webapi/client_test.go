package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumcare/companion/domain/entities"
)

func newTestClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	cfg.BaseURL = base

	c, err := New(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestSendMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations/42/send_message/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "csrf-1", r.Header.Get("X-CSRFToken"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		cookie, err := r.Cookie("sessionid")
		require.NoError(t, err)
		assert.Equal(t, "sess-1", cookie.Value)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"content": "hello", "voice_id": "default"}, body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"user_message":{"id":1,"content":"hello","message_type":"user"},"assistant_message":{"id":2,"content":"hi there","message_type":"assistant","sentiment_score":0.4},"voice_file":"/media/voice/2.mp3"}`)
	})

	c := newTestClient(t, mux, Config{SessionID: "sess-1", CSRFToken: "csrf-1"})

	result, err := c.SendMessage(context.Background(), "42", "hello", "default")
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.AssistantMessage.Content)
	assert.Equal(t, entities.AuthorAssistant, result.AssistantMessage.MessageType)
	require.NotNil(t, result.AssistantMessage.SentimentScore)
	assert.InDelta(t, 0.4, *result.AssistantMessage.SentimentScore, 1e-9)
	assert.Equal(t, "/media/voice/2.mp3", result.VoiceFile)
	require.NotNil(t, result.UserMessage)
	assert.Equal(t, "hello", result.UserMessage.Content)
}

func TestSendMessageFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"An error occurred while processing your message"}`)
	})
	c := newTestClient(t, handler, Config{})

	_, err := c.SendMessage(context.Background(), "42", "hello", "default")
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusInternalServerError, rerr.Status)
	assert.Equal(t, "An error occurred while processing your message", rerr.Message)
	assert.Equal(t, "/api/conversations/42/send_message/", rerr.Path)
}

func TestSendComfortEmail(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{"success", http.StatusOK, `{"success":true,"message":"sent"}`, true, false},
		{"reported failure", http.StatusInternalServerError, `{"success":false,"message":"smtp down"}`, false, false},
		{"html failure", http.StatusBadGateway, `<html>bad gateway</html>`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/agents/comfort-email/send/", r.URL.Path)
				assert.Equal(t, "csrf-1", r.Header.Get("X-CSRFToken"))
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			c := newTestClient(t, handler, Config{CSRFToken: "csrf-1"})

			result, err := c.SendComfortEmail(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Success)
		})
	}
}

func TestRecordMood(t *testing.T) {
	var gotForm url.Values
	accept := true
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		if accept {
			http.Redirect(w, r, "/dashboard/", http.StatusFound)
			return
		}
		io.WriteString(w, "<form>invalid</form>")
	})
	c := newTestClient(t, handler, Config{CSRFToken: "csrf-1"})

	require.NoError(t, c.RecordMood(context.Background(), entities.MoodGood, "slept well"))
	assert.Equal(t, "good", gotForm.Get("mood"))
	assert.Equal(t, "slept well", gotForm.Get("notes"))
	assert.Equal(t, "csrf-1", gotForm.Get("csrfmiddlewaretoken"))

	accept = false
	assert.True(t, errors.Is(c.RecordMood(context.Background(), entities.MoodBad, ""), ErrMoodRejected))
}

func TestVoiceProfiles(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[{"id":1,"name":"Calm","voice_id":"calm","is_premium":false},{"id":2,"name":"Bright","voice_id":"bright","is_premium":true}]`},
		{"paginated", `{"count":2,"results":[{"id":1,"name":"Calm","voice_id":"calm"},{"id":2,"name":"Bright","voice_id":"bright"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/voice-profiles/", r.URL.Path)
				io.WriteString(w, tt.body)
			})
			c := newTestClient(t, handler, Config{})

			profiles, err := c.VoiceProfiles(context.Background())
			require.NoError(t, err)
			require.Len(t, profiles, 2)
			assert.Equal(t, "calm", profiles[0].VoiceID)
			assert.Equal(t, "Bright", profiles[1].Name)
		})
	}
}

func TestVoiceSample(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/voice-profiles/1/sample/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"sample_url":"http://localhost/media/voice_samples/calm.mp3"}`)
	})
	mux.HandleFunc("/api/voice-profiles/2/sample/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"No sample audio available"}`)
	})
	c := newTestClient(t, mux, Config{})

	sample, err := c.VoiceSample(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/media/voice_samples/calm.mp3", sample)

	_, err = c.VoiceSample(context.Background(), 2)
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusNotFound, rerr.Status)
	assert.Equal(t, "No sample audio available", rerr.Message)
}

func TestHeaderAndCSRFFromCookie(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "from-cookie", Path: "/"})
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		io.WriteString(w, "<html></html>")
	})
	c := newTestClient(t, handler, Config{Token: "jwt-1", TokenScheme: "Bearer"})

	assert.Empty(t, c.CSRFToken())

	page, err := c.FetchPage(context.Background(), "/conversations/42/")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(page))

	assert.Equal(t, "from-cookie", c.CSRFToken())
	h := c.Header()
	assert.Equal(t, "from-cookie", h.Get("X-CSRFToken"))
	assert.Equal(t, "Bearer jwt-1", h.Get("Authorization"))

	c.SetCSRFToken("from-page")
	assert.Equal(t, "from-page", c.CSRFToken())
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
