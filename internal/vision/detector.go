package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Point is one vertex of a region's bounding polygon, in pixel coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region is one detected block of text with its location in the image.
// Regions are consumed within a single processing attempt and never stored.
type Region struct {
	Text     string
	Vertices []Point
}

// Client calls a Google Vision-style annotate endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description  string `json:"description"`
			BoundingPoly struct {
				Vertices []Point `json:"vertices"`
			} `json:"boundingPoly"`
		} `json:"textAnnotations"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Detect runs text detection on the given image bytes and returns the
// per-block regions. The first annotation is the full-image aggregate and is
// excluded. An image with no embedded text yields an empty slice, not an
// error.
func (c *Client) Detect(ctx context.Context, imageBytes []byte) ([]Region, error) {
	reqBody := annotateRequest{
		Requests: []annotateEntry{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(imageBytes)},
			Features: []annotateFeature{{Type: "TEXT_DETECTION"}},
		}},
	}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode annotate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/images:annotate?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build annotate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("text detection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("text detection: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode annotate response: %w", err)
	}
	if len(payload.Responses) == 0 {
		return nil, nil
	}
	first := payload.Responses[0]
	if first.Error != nil {
		return nil, fmt.Errorf("text detection: %s", first.Error.Message)
	}
	if len(first.TextAnnotations) <= 1 {
		return nil, nil
	}

	// annotations[0] covers the whole image; per-region translation wants
	// the individual blocks that follow it.
	regions := make([]Region, 0, len(first.TextAnnotations)-1)
	for _, ann := range first.TextAnnotations[1:] {
		if strings.TrimSpace(ann.Description) == "" {
			continue
		}
		regions = append(regions, Region{
			Text:     ann.Description,
			Vertices: ann.BoundingPoly.Vertices,
		})
	}
	return regions, nil
}
