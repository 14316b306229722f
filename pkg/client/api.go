package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/live-leaderboard/pkg/types"
)

// Errors returned by API calls and by acknowledged push commands. Use
// errors.Is to check.
var (
	ErrNotFound    = errors.New("team not found")
	ErrBadRequest  = errors.New("bad request")
	ErrServer      = errors.New("server error")
	ErrUnavailable = errors.New("leaderboard unavailable")
)

// HTTPError is a non-2xx response from the request/response API.
type HTTPError struct {
	StatusCode int
	Message    string
	Method     string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d from %s %s: %s", e.StatusCode, e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d from %s %s", e.StatusCode, e.Method, e.URL)
}

func NewDefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// API talks to the /api/teams routes. It is the fallback path of Client
// and usable on its own for admin tooling.
type API struct {
	httpClient *http.Client
	baseURL    string
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient()
	}
	return &API{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *API) ListTeams(ctx context.Context) ([]types.Team, error) {
	var teams []types.Team
	if err := a.do(ctx, http.MethodGet, "/api/teams", nil, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// Initialize seeds an empty leaderboard. On a populated one the server
// answers with the existing teams and Message "Teams already initialized".
func (a *API) Initialize(ctx context.Context, teams []types.TeamInput) (types.TeamsResponse, error) {
	var res types.TeamsResponse
	body := map[string]any{"teams": teams}
	err := a.do(ctx, http.MethodPost, "/api/teams", body, &res)
	return res, err
}

func (a *API) AddTeam(ctx context.Context, in types.TeamInput) (types.TeamResponse, error) {
	var res types.TeamResponse
	body := types.AddTeamRequest{Name: in.Name, CompanyName: in.CompanyName, Score: in.Score}
	err := a.do(ctx, http.MethodPost, "/api/teams/add", body, &res)
	return res, err
}

func (a *API) UpdateScore(ctx context.Context, teamName string, points any) (types.TeamResponse, error) {
	var res types.TeamResponse
	body := types.UpdateScoreRequest{TeamName: teamName, Points: points}
	err := a.do(ctx, http.MethodPut, "/api/teams/score", body, &res)
	return res, err
}

func (a *API) ResetScores(ctx context.Context) (types.TeamsResponse, error) {
	var res types.TeamsResponse
	err := a.do(ctx, http.MethodPut, "/api/teams/reset", nil, &res)
	return res, err
}

func (a *API) UpdateTeam(ctx context.Context, id string, req types.UpdateTeamRequest) (types.TeamResponse, error) {
	var res types.TeamResponse
	req.TeamID = ""
	err := a.do(ctx, http.MethodPut, "/api/teams/"+id, req, &res)
	return res, err
}

func (a *API) DeleteTeam(ctx context.Context, id string) (types.DeleteResponse, error) {
	var res types.DeleteResponse
	err := a.do(ctx, http.MethodDelete, "/api/teams/"+id, nil, &res)
	return res, err
}

func (a *API) do(ctx context.Context, method, path string, body, result any) error {
	url := a.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body for %s %s: %w", method, url, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request for %s: %w", method, url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", method, url, ctx.Err())
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody types.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &errBody) != nil {
			errBody.Message = strings.TrimSpace(string(raw))
		}
		return httpError(resp.StatusCode, errBody.Message, method, url)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode %s response from %s: %w", method, url, err)
		}
	}
	return nil
}

func httpError(status int, message, method, url string) error {
	httpErr := &HTTPError{StatusCode: status, Message: message, Method: method, URL: url}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, httpErr)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", ErrBadRequest, httpErr)
	case status == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", ErrUnavailable, httpErr)
	case status >= 500:
		return fmt.Errorf("%w: %w", ErrServer, httpErr)
	default:
		return httpErr
	}
}
