package sheets_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrouesnel/sheets-replicator/pkg/sheets"
	"go.uber.org/zap/zaptest"
)

type staticTokenSource struct {
	token string
	err   error
}

func (s *staticTokenSource) GetAccessToken() (string, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, handler http.Handler) (sheets.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := sheets.NewClient(sheets.ClientInitializationConfig{
		Logger:      zaptest.NewLogger(t),
		HTTPClient:  resty.New().SetBaseURL(server.URL),
		TokenSource: &staticTokenSource{token: "test-token"},
	})
	require.NoError(t, err)

	return client, server
}

func TestGetValues(t *testing.T) {
	var gotRequest *http.Request
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequest = r.Clone(r.Context())
		_ = json.NewEncoder(w).Encode(&sheets.ValueRange{
			Range:          "Data!A1:B2",
			MajorDimension: sheets.MajorDimensionRows,
			Values:         [][]interface{}{{"a", 1.0}},
		})
	}))

	result, err := client.GetValues("sheet-id", "Data!A1:B2", sheets.GetOptions{
		MajorDimension:    sheets.MajorDimensionRows,
		ValueRenderOption: sheets.ValueRenderUnformatted,
	})
	require.NoError(t, err)

	require.NotNil(t, gotRequest)
	assert.Equal(t, http.MethodGet, gotRequest.Method)
	assert.Equal(t, "/v4/spreadsheets/sheet-id/values/Data!A1:B2", gotRequest.URL.Path)
	assert.Equal(t, "ROWS", gotRequest.URL.Query().Get("majorDimension"))
	assert.Equal(t, "UNFORMATTED_VALUE", gotRequest.URL.Query().Get("valueRenderOption"))
	assert.Equal(t, "Bearer test-token", gotRequest.Header.Get("Authorization"))

	assert.Equal(t, "Data!A1:B2", result.Range)
	assert.Equal(t, [][]interface{}{{"a", 1.0}}, result.Values)
}

func TestUpdateValues(t *testing.T) {
	var gotRequest *http.Request
	var gotBody []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequest = r.Clone(r.Context())
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{}`))
	}))

	body := &sheets.ValueRange{
		Range:          "Mirror!A1:B1",
		MajorDimension: sheets.MajorDimensionRows,
		Values:         [][]interface{}{{"a", "b"}},
	}
	err := client.UpdateValues("sheet-id", "Mirror!A1:B1", body,
		sheets.UpdateOptions{ValueInputOption: sheets.ValueInputRaw})
	require.NoError(t, err)

	require.NotNil(t, gotRequest)
	assert.Equal(t, http.MethodPut, gotRequest.Method)
	assert.Equal(t, "/v4/spreadsheets/sheet-id/values/Mirror!A1:B1", gotRequest.URL.Path)
	assert.Equal(t, "RAW", gotRequest.URL.Query().Get("valueInputOption"))
	assert.Contains(t, gotRequest.Header.Get("Content-Type"), "application/json")

	sent := &sheets.ValueRange{}
	require.NoError(t, json.Unmarshal(gotBody, sent))
	assert.Equal(t, body, sent)
}

func TestAPIErrorDetails(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "The caller does not have permission", "status": "PERMISSION_DENIED"}}`))
	}))

	_, err := client.GetValues("sheet-id", "Data!A1:B2", sheets.GetOptions{})
	require.Error(t, err)

	apiErr := &sheets.APIError{}
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "The caller does not have permission")
	assert.False(t, apiErr.RateLimited())
}

func TestRateLimitedError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`))
	}))

	err := client.UpdateValues("sheet-id", "Data!A1:B2", &sheets.ValueRange{}, sheets.UpdateOptions{})
	require.Error(t, err)

	apiErr := &sheets.APIError{}
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.RateLimited())
}

func TestTokenSourceFailureAbortsRequest(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	t.Cleanup(server.Close)

	client, err := sheets.NewClient(sheets.ClientInitializationConfig{
		Logger:      zaptest.NewLogger(t),
		HTTPClient:  resty.New().SetBaseURL(server.URL),
		TokenSource: &staticTokenSource{err: errors.New("no credential")},
	})
	require.NoError(t, err)

	_, err = client.GetValues("sheet-id", "Data!A1:B2", sheets.GetOptions{})
	require.Error(t, err)
	assert.Zero(t, requests, "no request may be sent without a token")
}

func TestNewClientValidation(t *testing.T) {
	_, err := sheets.NewClient(sheets.ClientInitializationConfig{})
	require.Error(t, err)

	_, err = sheets.NewClient(sheets.ClientInitializationConfig{
		Logger: zaptest.NewLogger(t),
	})
	require.Error(t, err)

	_, err = sheets.NewClient(sheets.ClientInitializationConfig{
		Logger:     zaptest.NewLogger(t),
		HTTPClient: resty.New(),
	})
	require.Error(t, err)
}
