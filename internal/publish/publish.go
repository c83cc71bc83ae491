// Client for the external publish service: it turns an ordered list of
// remote page images into a lightweight hosted page and returns its
// stable URL. No binary transfer happens on this path, so published
// chapters have no size ceiling.

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error is a terminal publish failure. There is no silent downgrade to
// the document format; the caller reports the failure instead.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("publish failed: %s", e.Reason) }

// Publisher is the capability the pipeline needs from the service.
type Publisher interface {
	CreatePage(ctx context.Context, title string, imageURLs []string, author string) (url string, err error)
}

// Client talks to a telegraph-style page host.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a publish client for the service at baseURL.
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

// node is one element of the service's content tree.
type node struct {
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

type createPageRequest struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	Content    []node `json:"content"`
}

type createPageResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result struct {
		URL string `json:"url"`
	} `json:"result"`
}

// CreatePage publishes the page images in order and returns the page URL.
func (c *Client) CreatePage(ctx context.Context, title string, imageURLs []string, author string) (string, error) {
	content := make([]node, 0, len(imageURLs))
	for _, u := range imageURLs {
		content = append(content, node{Tag: "img", Attrs: map[string]string{"src": u}})
	}

	payload, err := json.Marshal(createPageRequest{Title: title, AuthorName: author, Content: content})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/createPage", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Reason: err.Error()}
	}
	var parsed createPageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Reason: "malformed response"}
	}
	if !parsed.OK || parsed.Result.URL == "" {
		reason := parsed.Error
		if reason == "" {
			reason = "service rejected page"
		}
		return "", &Error{Reason: reason}
	}
	return parsed.Result.URL, nil
}
