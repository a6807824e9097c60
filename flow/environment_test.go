package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEnvironment_Wrap(t *testing.T) {
	env, err := NewEnvironment(EnvironmentConfig{
		URLReplaceRegexp: `https?://staging\.shop\.local`,
		URLReplaceTo:     "http://localhost:3000",
		SleepAfterChange: 150,
	})
	require.NoError(t, err)

	original := Step{
		Type:     StepAjax,
		URL:      "https://staging.shop.local/cart",
		Request:  &AjaxRequest{URL: "https://staging.shop.local/api/cart", Method: "GET"},
		Response: &AjaxResponse{URL: "https://staging.shop.local/api/cart", Status: 200},
	}

	wrapped := env.Wrap(original)
	assert.Equal(t, "http://localhost:3000/cart", wrapped.URL)
	assert.Equal(t, "http://localhost:3000/api/cart", wrapped.Request.URL)
	assert.Equal(t, "http://localhost:3000/api/cart", wrapped.Response.URL)

	// the source step is untouched
	assert.Equal(t, "https://staging.shop.local/cart", original.URL)
	assert.Equal(t, "https://staging.shop.local/api/cart", original.Request.URL)

	assert.Equal(t, 150*time.Millisecond, env.SleepAfterChange())
	assert.Equal(t, DefaultSlowAjaxTime, env.SlowAjaxTime())
}

func TestEnvironment_Identity(t *testing.T) {
	var nilEnv *Environment
	s := Step{Type: StepStart, URL: "http://a.local/"}
	assert.Equal(t, s, nilEnv.Wrap(s))

	env, err := NewEnvironment(EnvironmentConfig{SlowAjaxTime: 900})
	require.NoError(t, err)
	assert.Equal(t, s, env.Wrap(s))
	assert.Equal(t, 900*time.Millisecond, env.SlowAjaxTime())
}

func TestNewEnvironment_InvalidRegexp(t *testing.T) {
	_, err := NewEnvironment(EnvironmentConfig{URLReplaceRegexp: "(unclosed"})
	assert.Error(t, err)
}

func TestEnvironment_WrapIsIdempotent(t *testing.T) {
	env, err := NewEnvironment(EnvironmentConfig{
		URLReplaceRegexp: `staging`,
		URLReplaceTo:     "prod",
	})
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		path := rapid.StringMatching(`[a-z/]{0,24}`).Draw(t, "path")
		host := rapid.SampledFrom([]string{"staging", "prod", "stagingstaging", "local"}).Draw(t, "host")
		s := Step{Type: StepStart, URL: "http://" + host + ".example/" + path}

		once := env.Wrap(s)
		twice := env.Wrap(once)
		if once.URL != twice.URL {
			t.Fatalf("wrap not idempotent: %q vs %q", once.URL, twice.URL)
		}
	})
}
