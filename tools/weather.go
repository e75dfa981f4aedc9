package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultWeatherBaseURL = "https://wttr.in"

// Weather looks up a one-line weather digest from a wttr.in compatible service.
type Weather struct {
	client  *http.Client
	baseURL string
}

func NewWeather(client *http.Client, baseURL string) *Weather {
	if baseURL == "" {
		baseURL = defaultWeatherBaseURL
	}
	return &Weather{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Lookup never returns an error: network and status failures are reported as
// text so the model can react to them.
func (w *Weather) Lookup(ctx context.Context, location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "Could not retrieve weather: no location given.", nil
	}

	endpoint := fmt.Sprintf("%s/%s?format=3", w.baseURL, url.PathEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Sprintf("Error retrieving weather: %v", err), nil
	}
	req.Header.Set("User-Agent", "curl/8.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error retrieving weather: %v", err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Could not retrieve weather for %s.", location), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Sprintf("Error retrieving weather: %v", err), nil
	}
	return strings.TrimSpace(string(body)), nil
}
