package aivalidation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
)

func TestResultValidate(t *testing.T) {
	valid := Result{ValidationScore: 8, ConfidenceScore: 0.9, OverallStatus: StatusPass}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Result)
	}{
		{"score above range", func(r *Result) { r.ValidationScore = 10.1 }},
		{"score below range", func(r *Result) { r.ValidationScore = -1 }},
		{"confidence above range", func(r *Result) { r.ConfidenceScore = 1.5 }},
		{"confidence below range", func(r *Result) { r.ConfidenceScore = -0.1 }},
		{"unknown status", func(r *Result) { r.OverallStatus = "maybe" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalService))
		})
	}
}

func TestResultPassed(t *testing.T) {
	assert.True(t, (&Result{ValidationScore: 7.0, OverallStatus: StatusPass}).Passed())
	assert.True(t, (&Result{ValidationScore: 10, OverallStatus: StatusPass}).Passed())
	assert.False(t, (&Result{ValidationScore: 6.9, OverallStatus: StatusPass}).Passed())
	assert.False(t, (&Result{ValidationScore: 9, OverallStatus: StatusWarning}).Passed())
	assert.False(t, (&Result{ValidationScore: 9, OverallStatus: StatusFail}).Passed())
}

func TestHTTPClient(t *testing.T) {
	t.Run("decodes a verdict", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/validate", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"validation_score": 8.5,
				"confidence_score": 0.92,
				"issues_found": ["low resolution scan"],
				"recommendations": [],
				"overall_status": "pass"
			}`))
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, srv.Client())
		res, err := client.Validate(context.Background(), Request{DocumentRef: "doc-1"})
		require.NoError(t, err)
		assert.InDelta(t, 8.5, res.ValidationScore, 0.001)
		assert.Equal(t, StatusPass, res.OverallStatus)
		assert.True(t, res.Passed())
	})

	t.Run("non-200 is an external service error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, srv.Client())
		_, err := client.Validate(context.Background(), Request{DocumentRef: "doc-1"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalService))
	})

	t.Run("out-of-range verdict is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"validation_score": 42, "confidence_score": 0.9, "overall_status": "pass"}`))
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, srv.Client())
		_, err := client.Validate(context.Background(), Request{DocumentRef: "doc-1"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalService))
	})

	t.Run("unreachable service is an external service error", func(t *testing.T) {
		client := NewHTTPClient("http://127.0.0.1:1", nil)
		_, err := client.Validate(context.Background(), Request{DocumentRef: "doc-1"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalService))
	})
}
