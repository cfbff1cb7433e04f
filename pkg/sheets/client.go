package sheets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/ldez/mimetype"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.withmatt.com/httpheaders"
)

// DefaultBaseURL is the Google Sheets API endpoint.
const DefaultBaseURL = "https://sheets.googleapis.com"

const (
	MajorDimensionRows = "ROWS"

	ValueRenderUnformatted = "UNFORMATTED_VALUE"

	ValueInputRaw = "RAW"
)

// ValueRange mirrors the Sheets v4 values resource.
type ValueRange struct {
	Range          string          `json:"range,omitempty"`
	MajorDimension string          `json:"majorDimension,omitempty"`
	Values         [][]interface{} `json:"values,omitempty"`
}

// APIError is returned for any non-2xx response from the Sheets API.
type APIError struct {
	StatusCode int
	Status     string
	Messages   []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets api: %s: %s", e.Status, strings.Join(e.Messages, "; "))
}

// RateLimited reports whether the request exceeded the read or write quota.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type ClientInitializationError struct {
	msg string
}

func (c ClientInitializationError) Error() string {
	return fmt.Sprintf("sheets client init: %s", c.msg)
}

// GetOptions control how values are read.
type GetOptions struct {
	MajorDimension    string
	ValueRenderOption string
}

// UpdateOptions control how values are written.
type UpdateOptions struct {
	ValueInputOption string
}

// Client accesses the spreadsheet values API.
type Client interface {
	GetValues(spreadsheetID string, valueRange string, opts GetOptions) (*ValueRange, error)
	UpdateValues(spreadsheetID string, valueRange string, body *ValueRange, opts UpdateOptions) error
}

// ClientInitializationConfig provides initialization parameters for the Sheets client.
type ClientInitializationConfig struct {
	// Logger is the *zap.Logger to use
	Logger *zap.Logger
	// HTTPClient is the resty Client instance for contacting the Sheets API
	HTTPClient *resty.Client
	// TokenSource supplies the bearer token sent with each request
	TokenSource TokenSource
}

// NewClient initializes a new Sheets API client and validates its configuration.
func NewClient(config ClientInitializationConfig) (Client, error) {
	if config.Logger == nil {
		return nil, &ClientInitializationError{msg: "no logger provided"}
	}

	if config.HTTPClient == nil {
		return nil, &ClientInitializationError{msg: "no httpClient provided"}
	}

	if config.TokenSource == nil {
		return nil, &ClientInitializationError{msg: "no token source provided"}
	}

	return &client{ClientInitializationConfig: config}, nil
}

type client struct {
	ClientInitializationConfig
}

func (c *client) log() *zap.Logger {
	return c.Logger
}

func (c *client) valuesPath(spreadsheetID string, valueRange string) string {
	return fmt.Sprintf("/v4/spreadsheets/%s/values/%s",
		url.PathEscape(spreadsheetID), url.PathEscape(valueRange))
}

func (c *client) request() (*resty.Request, error) {
	token, err := c.TokenSource.GetAccessToken()
	if err != nil {
		return nil, errors.Wrap(err, "sheets: acquiring access token")
	}

	return c.HTTPClient.R().
		SetHeader(httpheaders.Authorization, fmt.Sprintf("Bearer %s", token)), nil
}

func (c *client) GetValues(spreadsheetID string, valueRange string, opts GetOptions) (*ValueRange, error) {
	req, err := c.request()
	if err != nil {
		return nil, err
	}

	if opts.MajorDimension != "" {
		req.SetQueryParam("majorDimension", opts.MajorDimension)
	}
	if opts.ValueRenderOption != "" {
		req.SetQueryParam("valueRenderOption", opts.ValueRenderOption)
	}

	resp, err := req.Get(c.valuesPath(spreadsheetID, valueRange))
	if err != nil {
		return nil, errors.Wrap(err, "GetValues: request error")
	}

	if resp.IsError() {
		return nil, apiError(resp)
	}

	result := &ValueRange{}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return nil, errors.Wrap(err, "GetValues: json.Unmarshal failed")
	}

	return result, nil
}

func (c *client) UpdateValues(spreadsheetID string, valueRange string, body *ValueRange, opts UpdateOptions) error {
	req, err := c.request()
	if err != nil {
		return err
	}

	if opts.ValueInputOption != "" {
		req.SetQueryParam("valueInputOption", opts.ValueInputOption)
	}

	resp, err := req.
		SetHeader(httpheaders.ContentType, mimetype.ApplicationJSON).
		SetBody(body).
		Put(c.valuesPath(spreadsheetID, valueRange))
	if err != nil {
		return errors.Wrap(err, "UpdateValues: request error")
	}

	if resp.IsError() {
		return apiError(resp)
	}

	c.log().Debug("Values updated",
		zap.String("spreadsheet_id", spreadsheetID),
		zap.String("range", valueRange))

	return nil
}

// apiError recovers the detailed error response if the API itself did respond
// to us, falling back to the bare HTTP status.
func apiError(resp *resty.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
	}

	jsonResp := map[string]interface{}{}
	if err := json.Unmarshal(resp.Body(), &jsonResp); err != nil {
		return apiErr
	}

	errorIntf, found := jsonResp["error"].(map[string]interface{})
	if !found {
		return apiErr
	}

	if message, ok := errorIntf["message"].(string); ok {
		apiErr.Messages = append(apiErr.Messages, message)
	}
	if status, ok := errorIntf["status"].(string); ok {
		apiErr.Messages = append(apiErr.Messages, status)
	}

	return apiErr
}
