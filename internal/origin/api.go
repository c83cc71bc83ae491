// Typed endpoints over the raw Fetch call: catalog search, series
// detail and chapter page lists.

package origin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/animanga/mangapipe/internal/models"
)

// Search queries the origin catalog. Filters may carry order_by,
// genres and kinds; limit and page control origin-side pagination.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string, limit, page int) ([]*models.SeriesMetadata, models.PageInfo, error) {
	params := url.Values{}
	if query != "" {
		params.Set("search", query)
	}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("page", fmt.Sprintf("%d", page))

	orderBy := filters["order_by"]
	if orderBy == "" {
		orderBy = "popular"
	}
	params.Set("order_by", orderBy)
	if genres := filters["genres"]; genres != "" {
		params.Set("genres", genres)
	}
	if kinds := filters["kinds"]; kinds != "" {
		params.Set("kinds", kinds)
	}
	// Cache buster so intermediate proxies don't serve stale catalogs.
	params.Set("_", fmt.Sprintf("%d", time.Now().UnixMilli()))

	body, err := c.Fetch(ctx, c.baseURL+"/?"+params.Encode())
	if err != nil {
		return nil, models.PageInfo{}, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.PageInfo{}, fmt.Errorf("failed to decode search response: %w", err)
	}

	var results []*models.SeriesMetadata
	for i := range parsed.Response {
		results = append(results, parsed.Response[i].toMetadata())
	}
	info := models.PageInfo{
		Page:  page,
		Pages: parsed.PageNavParams.Pages,
		Items: parsed.PageNavParams.Count,
	}
	if info.Items == 0 {
		info.Items = len(results)
	}
	return results, info, nil
}

// GetSeries fetches the detail record for one series. A payload
// without a response object is a soft failure and returns nil.
func (c *Client) GetSeries(ctx context.Context, seriesID int64) (*models.SeriesMetadata, error) {
	body, err := c.Fetch(ctx, fmt.Sprintf("%s/%d", c.baseURL, seriesID))
	if err != nil {
		return nil, err
	}

	var parsed seriesDetailResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode series response: %w", err)
	}
	if parsed.Response == nil || parsed.Response.ID == 0 {
		return nil, nil
	}
	return parsed.Response.toMetadata(), nil
}

// GetChapterPages resolves a chapter's ordered page image URLs. A
// payload without a page list returns an empty slice; the pipeline
// decides whether that is terminal.
func (c *Client) GetChapterPages(ctx context.Context, seriesID int64, chapterID string) ([]string, error) {
	body, err := c.Fetch(ctx, fmt.Sprintf("%s/%d/chapter/%s", c.baseURL, seriesID, chapterID))
	if err != nil {
		return nil, err
	}

	var parsed chapterResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chapter response: %w", err)
	}
	if parsed.Response == nil {
		return nil, nil
	}

	var urls []string
	for _, p := range parsed.Response.Pages.List {
		if p.Img != "" {
			urls = append(urls, p.Img)
		}
	}
	return urls, nil
}

// DownloadImage fetches a single page image through the same
// protection stack as the API calls.
func (c *Client) DownloadImage(ctx context.Context, imgURL string) ([]byte, error) {
	return c.Fetch(ctx, imgURL)
}
