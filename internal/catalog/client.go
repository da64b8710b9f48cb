package catalog

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const pageLimit = 250

// Client talks to a Shopify-style catalog admin API. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListItems returns one page of the catalog. Pass the cursor from the
// previous page, or "" for the first page.
func (c *Client) ListItems(ctx context.Context, cursor string) (Page, error) {
	endpoint := fmt.Sprintf("%s/products.json?limit=%d", c.baseURL, pageLimit)
	if cursor != "" {
		endpoint += "&page_info=" + url.QueryEscape(cursor)
	}

	var payload struct {
		Products []Item `json:"products"`
	}
	header, err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload)
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Items:      make([]Item, 0, len(payload.Products)),
		NextCursor: nextPageCursor(header.Get("Link")),
	}
	for _, item := range payload.Products {
		page.Items = append(page.Items, sanitizeItem(item))
	}
	return page, nil
}

func (c *Client) GetItem(ctx context.Context, id int64) (*Item, error) {
	endpoint := fmt.Sprintf("%s/products/%d.json", c.baseURL, id)

	var payload struct {
		Product Item `json:"product"`
	}
	if _, err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	item := sanitizeItem(payload.Product)
	return &item, nil
}

// UpdateItem pushes the translated text fields and variants in one call.
// Images are managed separately through UploadImage/DeleteImage.
func (c *Client) UpdateItem(ctx context.Context, item *Item) error {
	endpoint := fmt.Sprintf("%s/products/%d.json", c.baseURL, item.ID)

	body := map[string]any{
		"product": map[string]any{
			"id":        item.ID,
			"title":     item.Title,
			"body_html": item.BodyHTML,
			"tags":      item.Tags,
			"variants":  item.Variants,
		},
	}
	_, err := c.doJSON(ctx, http.MethodPut, endpoint, body, nil)
	return err
}

// UploadImage attaches a new image to the item and returns the created asset.
func (c *Client) UploadImage(ctx context.Context, itemID int64, data []byte) (*Image, error) {
	endpoint := fmt.Sprintf("%s/products/%d/images.json", c.baseURL, itemID)

	body := map[string]any{
		"image": map[string]any{
			"attachment": base64.StdEncoding.EncodeToString(data),
		},
	}
	var payload struct {
		Image Image `json:"image"`
	}
	if _, err := c.doJSON(ctx, http.MethodPost, endpoint, body, &payload); err != nil {
		return nil, err
	}
	return &payload.Image, nil
}

func (c *Client) DeleteImage(ctx context.Context, itemID, imageID int64) error {
	endpoint := fmt.Sprintf("%s/products/%d/images/%d.json", c.baseURL, itemID, imageID)
	_, err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

// DownloadImage fetches raw image bytes from the asset CDN. The admin token
// is deliberately not sent to the CDN host.
func (c *Client) DownloadImage(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image %s: unexpected status %d", src, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", src, err)
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s",
			method, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
	}
	return resp.Header, nil
}

// sanitizeItem validates the provider payload at the boundary: assets without
// a source reference are dropped so downstream code never sees them.
func sanitizeItem(item Item) Item {
	images := make([]Image, 0, len(item.Images))
	for _, img := range item.Images {
		if strings.TrimSpace(img.Src) == "" {
			continue
		}
		images = append(images, img)
	}
	item.Images = images
	return item
}

// nextPageCursor extracts the page_info cursor from a Link response header of
// the form `<https://host/products.json?page_info=abc&limit=250>; rel="next"`.
func nextPageCursor(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		parsed, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		return parsed.Query().Get("page_info")
	}
	return ""
}
