package pixiv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
)

const (
	// DefaultBaseURL is the Pixiv app API endpoint
	DefaultBaseURL = "https://app-api.pixiv.net"

	// imageReferer is required on image host requests or they 403
	imageReferer = "https://www.pixiv.net/"

	defaultUserAgent = "PixivBookmarkCache/1.0"
)

// Client is a Pixiv app API client implementing the bookmark listing,
// image fetch, and ugoira metadata ports. The sync core never uses it
// directly; it only sees the port interfaces.
type Client struct {
	baseURL     string
	accessToken string
	userAgent   string
	httpClient  *http.Client
	imageClient *http.Client
}

// Ensure Client implements the source ports
var (
	_ port.BookmarkSource = (*Client)(nil)
	_ port.ImageFetcher   = (*Client)(nil)
	_ port.UgoiraSource   = (*Client)(nil)
)

// NewClient creates a new Pixiv API client. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL, accessToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		userAgent:   defaultUserAgent,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		imageClient: &http.Client{
			Transport: transport,
			Timeout:   2 * time.Minute,
		},
	}
}

// ListBookmarks fetches the first page of a user's bookmarks for one
// restrict class ("public" or "private")
func (c *Client) ListBookmarks(ctx context.Context, userID, restrict string) (*port.BookmarkPage, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("restrict", restrict)
	q.Set("filter", "for_ios")

	endpoint := c.baseURL + "/v1/user/bookmarks/illust?" + q.Encode()

	var page port.BookmarkPage
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	return &page, nil
}

// ListBookmarksNext fetches a follow-up page by its cursor URL
func (c *Client) ListBookmarksNext(ctx context.Context, nextURL string) (*port.BookmarkPage, error) {
	var page port.BookmarkPage
	if err := c.getJSON(ctx, nextURL, &page); err != nil {
		return nil, fmt.Errorf("list bookmarks next page: %w", err)
	}
	return &page, nil
}

// UgoiraArchiveURL resolves the frame archive URL of an ugoira work
func (c *Client) UgoiraArchiveURL(ctx context.Context, illustID int64) (string, error) {
	endpoint := c.baseURL + "/v1/ugoira/metadata?illust_id=" + strconv.FormatInt(illustID, 10)

	var resp struct {
		UgoiraMetadata struct {
			ZipURLs struct {
				Medium string `json:"medium"`
			} `json:"zip_urls"`
		} `json:"ugoira_metadata"`
	}
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return "", fmt.Errorf("ugoira metadata: %w", err)
	}
	if resp.UgoiraMetadata.ZipURLs.Medium == "" {
		return "", domain.ErrNotFound
	}
	return resp.UgoiraMetadata.ZipURLs.Medium, nil
}

// FetchImage fetches raw image bytes. The image host checks the
// Referer header, not the OAuth token.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", imageReferer)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.imageClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return data, nil
}

// getJSON performs an authenticated GET and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
