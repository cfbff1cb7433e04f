package sheets

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTokenURL is the Google OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// expirySlack is how long before actual expiry a cached token is refreshed.
const expirySlack = time.Minute

// OAuthSource implements the headless half of the installed-app OAuth flow: a
// previously authorized token cached on disk, refreshed against the token
// endpoint with the client secrets when expired. There is no interactive
// browser flow - seeding the token file is an out-of-band setup step.
type OAuthSource struct {
	// ClientSecretsFile is the path to the downloaded client secrets JSON.
	ClientSecretsFile string `help:"Path to the OAuth client secrets JSON file"`
	// TokenFile caches the authorized token between runs.
	TokenFile string `help:"Path to the cached OAuth token" default:"token.json"`

	// TokenURL overrides the OAuth token endpoint.
	TokenURL string `kong:"-"`
	// HTTPClient is the resty client used for token refresh.
	HTTPClient *resty.Client `kong:"-"`
	// Now function for getting time
	Now func() time.Time `kong:"-"`
}

// cachedToken is the on-disk token format. It replaces the pickle file the
// original replicator kept.
type cachedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

type clientSecrets struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		TokenURI     string `json:"token_uri"`
	} `json:"installed"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (o *OAuthSource) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *OAuthSource) GetAccessToken() (string, error) {
	logger := zap.L().With(zap.String("token_file", o.TokenFile))

	token, err := o.loadToken()
	if err != nil {
		return "", err
	}

	if token.AccessToken != "" && token.Expiry.After(o.now().Add(expirySlack)) {
		logger.Debug("Using cached access token", zap.Time("expiry", token.Expiry))
		return token.AccessToken, nil
	}

	if token.RefreshToken == "" {
		logger.Error("Cached token is expired and holds no refresh token")
		return "", &TokenSourceErr{msg: "no usable credential: token expired and not refreshable"}
	}

	logger.Info("Cached access token expired - refreshing")
	if err := o.refresh(token); err != nil {
		return "", err
	}

	if err := o.saveToken(token); err != nil {
		// The refreshed token is still usable for this run.
		logger.Warn("Could not persist refreshed token", zap.Error(err))
	}

	return token.AccessToken, nil
}

func (o *OAuthSource) loadToken() (*cachedToken, error) {
	data, err := os.ReadFile(o.TokenFile)
	if err != nil {
		return nil, errors.Wrapf(err, "OAuthSource: reading token file %s", o.TokenFile)
	}

	token := &cachedToken{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, errors.Wrapf(err, "OAuthSource: parsing token file %s", o.TokenFile)
	}

	return token, nil
}

func (o *OAuthSource) saveToken(token *cachedToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return errors.Wrap(err, "OAuthSource: marshalling token")
	}

	if err := os.WriteFile(o.TokenFile, data, 0o600); err != nil {
		return errors.Wrapf(err, "OAuthSource: writing token file %s", o.TokenFile)
	}

	return nil
}

// refresh exchanges the refresh token for a new access token and updates
// token in place.
func (o *OAuthSource) refresh(token *cachedToken) error {
	secretsData, err := os.ReadFile(o.ClientSecretsFile)
	if err != nil {
		return errors.Wrapf(err, "OAuthSource: reading client secrets %s", o.ClientSecretsFile)
	}

	secrets := &clientSecrets{}
	if err := json.Unmarshal(secretsData, secrets); err != nil {
		return errors.Wrapf(err, "OAuthSource: parsing client secrets %s", o.ClientSecretsFile)
	}

	tokenURL := o.TokenURL
	if tokenURL == "" {
		tokenURL = secrets.Installed.TokenURI
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	httpClient := o.HTTPClient
	if httpClient == nil {
		httpClient = resty.New()
	}

	resp, err := httpClient.R().
		SetFormData(map[string]string{
			"client_id":     secrets.Installed.ClientID,
			"client_secret": secrets.Installed.ClientSecret,
			"refresh_token": token.RefreshToken,
			"grant_type":    "refresh_token",
		}).
		Post(tokenURL)
	if err != nil {
		return errors.Wrap(err, "OAuthSource: token refresh request")
	}

	if resp.IsError() {
		return &TokenSourceErr{msg: fmt.Sprintf("token refresh failed: %s", resp.Status())}
	}

	refreshed := &refreshResponse{}
	if err := json.Unmarshal(resp.Body(), refreshed); err != nil {
		return errors.Wrap(err, "OAuthSource: parsing token refresh response")
	}

	if refreshed.AccessToken == "" {
		return &TokenSourceErr{msg: "token refresh response contained no access token"}
	}

	token.AccessToken = refreshed.AccessToken
	token.Expiry = o.now().Add(time.Duration(refreshed.ExpiresIn) * time.Second)

	return nil
}
