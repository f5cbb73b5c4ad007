package submission_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/efactura-agt/internal/application/submission"
)

func TestClassify_2xxAceptado(t *testing.T) {
	out := submission.Classify(&submission.RegistryResponse{StatusCode: 200, Body: []byte(`{"status":"success","documentId":"AGT-123"}`)}, nil)
	assert.Equal(t, submission.OutcomeAccepted, out.Kind)
	assert.Contains(t, out.Body, "AGT-123")

	out = submission.Classify(&submission.RegistryResponse{StatusCode: 201, Body: []byte(`no-json`)}, nil)
	assert.Equal(t, submission.OutcomeAccepted, out.Kind)
}

func TestClassify_RechazoDeContenido(t *testing.T) {
	out := submission.Classify(&submission.RegistryResponse{StatusCode: 422, Body: []byte(`{"errors":["nif"]}`)}, nil)
	assert.Equal(t, submission.OutcomeRejected, out.Kind)

	out = submission.Classify(&submission.RegistryResponse{StatusCode: 200, Body: []byte(`{"status":"REJECTED"}`)}, nil)
	assert.Equal(t, submission.OutcomeRejected, out.Kind)
}

func TestClassify_Transitorios(t *testing.T) {
	for _, code := range []int{500, 502, 503, 429, 400, 409} {
		out := submission.Classify(&submission.RegistryResponse{StatusCode: code}, nil)
		assert.Equal(t, submission.OutcomeTransient, out.Kind, "HTTP %d", code)
	}

	out := submission.Classify(nil, errors.New("context deadline exceeded"))
	assert.Equal(t, submission.OutcomeTransient, out.Kind)
	assert.Equal(t, 0, out.StatusCode)
}

func TestBackoff_IndexaPorIntentoYSeLimita(t *testing.T) {
	schedule := []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second}

	assert.Equal(t, 10*time.Second, submission.Backoff(schedule, 1))
	assert.Equal(t, 30*time.Second, submission.Backoff(schedule, 2))
	assert.Equal(t, 300*time.Second, submission.Backoff(schedule, 5))
	assert.Equal(t, 300*time.Second, submission.Backoff(schedule, 9))
	assert.Equal(t, 10*time.Second, submission.Backoff(schedule, 0))
	assert.Equal(t, time.Duration(0), submission.Backoff(nil, 3))
}
