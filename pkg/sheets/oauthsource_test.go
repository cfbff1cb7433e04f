package sheets_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrouesnel/sheets-replicator/pkg/sheets"
)

func writeJSON(t *testing.T, path string, value interface{}) {
	t.Helper()
	data, err := json.Marshal(value)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func writeTokenFile(t *testing.T, dir string, token map[string]interface{}) string {
	t.Helper()
	path := filepath.Join(dir, "token.json")
	writeJSON(t, path, token)
	return path
}

func writeSecretsFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.json")
	writeJSON(t, path, map[string]interface{}{
		"installed": map[string]interface{}{
			"client_id":     "client-id",
			"client_secret": "client-secret",
		},
	})
	return path
}

func TestOAuthSourceUsesCachedToken(t *testing.T) {
	dir := t.TempDir()
	source := &sheets.OAuthSource{
		TokenFile: writeTokenFile(t, dir, map[string]interface{}{
			"access_token": "cached-token",
			"expiry":       time.Now().Add(time.Hour).Format(time.RFC3339),
		}),
	}

	token, err := source.GetAccessToken()
	require.NoError(t, err)
	assert.Equal(t, "cached-token", token)
}

func TestOAuthSourceRefreshesExpiredToken(t *testing.T) {
	dir := t.TempDir()

	var gotForm map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fresh-token",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)

	tokenFile := writeTokenFile(t, dir, map[string]interface{}{
		"access_token":  "stale-token",
		"refresh_token": "refresh-token",
		"expiry":        time.Now().Add(-time.Hour).Format(time.RFC3339),
	})

	source := &sheets.OAuthSource{
		ClientSecretsFile: writeSecretsFile(t, dir),
		TokenFile:         tokenFile,
		TokenURL:          server.URL,
	}

	token, err := source.GetAccessToken()
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)

	require.NotNil(t, gotForm)
	assert.Equal(t, "refresh_token", gotForm["grant_type"][0])
	assert.Equal(t, "client-id", gotForm["client_id"][0])
	assert.Equal(t, "client-secret", gotForm["client_secret"][0])
	assert.Equal(t, "refresh-token", gotForm["refresh_token"][0])

	// The refreshed token must be persisted with the refresh token intact.
	persisted, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	saved := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(persisted, &saved))
	assert.Equal(t, "fresh-token", saved["access_token"])
	assert.Equal(t, "refresh-token", saved["refresh_token"])
}

func TestOAuthSourceRefreshFailure(t *testing.T) {
	dir := t.TempDir()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	t.Cleanup(server.Close)

	source := &sheets.OAuthSource{
		ClientSecretsFile: writeSecretsFile(t, dir),
		TokenFile: writeTokenFile(t, dir, map[string]interface{}{
			"refresh_token": "revoked",
		}),
		TokenURL: server.URL,
	}

	_, err := source.GetAccessToken()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token refresh failed")
}

func TestOAuthSourceExpiredWithoutRefreshToken(t *testing.T) {
	dir := t.TempDir()
	source := &sheets.OAuthSource{
		TokenFile: writeTokenFile(t, dir, map[string]interface{}{
			"access_token": "stale",
			"expiry":       time.Now().Add(-time.Hour).Format(time.RFC3339),
		}),
	}

	_, err := source.GetAccessToken()
	require.Error(t, err)
}

func TestOAuthSourceMissingTokenFile(t *testing.T) {
	source := &sheets.OAuthSource{
		TokenFile: filepath.Join(t.TempDir(), "does-not-exist.json"),
	}

	_, err := source.GetAccessToken()
	require.Error(t, err)
}

func TestFileSourceReadsFirstLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("file-token\nextra\n"), 0o600))

	source := &sheets.FileSource{FilePath: path}
	token, err := source.GetAccessToken()
	require.NoError(t, err)
	assert.Equal(t, "file-token", token)
}

func TestFileSourceMissingFile(t *testing.T) {
	source := &sheets.FileSource{FilePath: filepath.Join(t.TempDir(), "nope")}
	_, err := source.GetAccessToken()
	require.Error(t, err)
}
