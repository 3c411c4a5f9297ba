package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Tile is one bounding-box sub-region of the monitored area, in decimal
// degrees. Edge tiles may overlap slightly; the aggregate step dedups
// whatever both sides report.
type Tile struct {
	Bottom float64
	Left   float64
	Top    float64
	Right  float64
}

// SplitRegion divides the region bounds into an n-by-n grid of tiles,
// ordered south to north, west to east. That order is also the dedup
// precedence order for alerts reported by more than one tile.
func SplitRegion(bottom, left, top, right float64, n int) []Tile {
	latStep := (top - bottom) / float64(n)
	lonStep := (right - left) / float64(n)

	tiles := make([]Tile, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			tiles = append(tiles, Tile{
				Bottom: bottom + float64(row)*latStep,
				Left:   left + float64(col)*lonStep,
				Top:    bottom + float64(row+1)*latStep,
				Right:  left + float64(col+1)*lonStep,
			})
		}
	}
	return tiles
}

// wazeAlert is the upstream record shape. Every field is optional in
// practice; numeric fields that matter for thresholds are pointers so a
// missing value is distinguishable from zero.
type wazeAlert struct {
	UUID              string        `json:"uuid"`
	Type              string        `json:"type"`
	Subtype           string        `json:"subtype"`
	ReportDescription string        `json:"reportDescription"`
	AdditionalInfo    string        `json:"additionalInfo"`
	Street            string        `json:"street"`
	RoadName          string        `json:"roadName"`
	Location          *wazeLocation `json:"location"`
	Lat               *float64      `json:"lat"`
	Lon               *float64      `json:"lon"`
	PubMillis         int64         `json:"pubMillis"`
	EndTimeMillis     int64         `json:"endTimeMillis"`
	Confidence        *int          `json:"confidence"`
	Reliability       *int          `json:"reliability"`
	Rating            *int          `json:"rating"`
	NThumbsUp         *int          `json:"nThumbsUp"`
	ReporterNickname  string        `json:"reporterNickname"`
	ReportBy          string        `json:"reportBy"`
}

type wazeLocation struct {
	X *float64 `json:"x"` // longitude
	Y *float64 `json:"y"` // latitude
}

type wazeResponse struct {
	Alerts []wazeAlert `json:"alerts"`
}

func parseAlerts(body []byte) ([]wazeAlert, error) {
	var data wazeResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding alerts body: %w", err)
	}
	return data.Alerts, nil
}

// Client fetches raw alert bodies from the Waze live-map feed. It is
// stateless; every tile is an independent GET.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) tileURL(t Tile) string {
	q := url.Values{}
	q.Set("bottom", strconv.FormatFloat(t.Bottom, 'f', -1, 64))
	q.Set("left", strconv.FormatFloat(t.Left, 'f', -1, 64))
	q.Set("top", strconv.FormatFloat(t.Top, 'f', -1, 64))
	q.Set("right", strconv.FormatFloat(t.Right, 'f', -1, 64))
	q.Set("env", "row")
	q.Set("types", "alerts")
	return c.baseURL + "?" + q.Encode()
}

// FetchTile retrieves one tile's raw response body. It only transports
// bytes; structural parsing happens in the aggregate step.
func (c *Client) FetchTile(ctx context.Context, t Tile) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tileURL(t), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading resp.Body: %w", err)
	}
	return body, nil
}
