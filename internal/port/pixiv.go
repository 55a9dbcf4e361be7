package port

import (
	"context"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
)

// ImageURLs holds the variant URLs of one image
type ImageURLs struct {
	SquareMedium string `json:"square_medium,omitempty"`
	Medium       string `json:"medium"`
	Large        string `json:"large"`
	Original     string `json:"original,omitempty"`
}

// URLForQuality returns the URL of the requested tier, falling back to
// large when the original variant is not present.
func (u *ImageURLs) URLForQuality(q domain.Quality) string {
	switch q {
	case domain.QualityOriginal:
		if u.Original != "" {
			return u.Original
		}
		return u.Large
	case domain.QualityLarge:
		return u.Large
	default:
		return u.Medium
	}
}

// MetaSinglePage carries the original URL of single-page works
type MetaSinglePage struct {
	OriginalImageURL string `json:"original_image_url,omitempty"`
}

// MetaPage is one page of a multi-page work
type MetaPage struct {
	ImageURLs ImageURLs `json:"image_urls"`
}

// BookmarkUser is the author of a bookmarked work
type BookmarkUser struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account,omitempty"`
}

// BookmarkItem is one work returned by the bookmark listing call
type BookmarkItem struct {
	ID               int64           `json:"id"`
	Title            string          `json:"title"`
	Type             string          `json:"type"` // "illust", "manga" or "ugoira"
	User             BookmarkUser    `json:"user"`
	ImageURLs        ImageURLs       `json:"image_urls"`
	PageCount        int             `json:"page_count"`
	MetaSinglePage   *MetaSinglePage `json:"meta_single_page,omitempty"`
	MetaPages        []MetaPage      `json:"meta_pages,omitempty"`
	TotalBookmarks   int             `json:"total_bookmarks"`
	BookmarkRestrict string          `json:"bookmark_restrict,omitempty"`
}

// IsUgoira reports whether the work is an animated multi-frame work
func (it *BookmarkItem) IsUgoira() bool {
	return it.Type == "ugoira"
}

// VariantURLs returns the image URLs selected by quality tier and page
// policy. Single-page works (and allPages=false) yield one URL; the
// original tier of a single-page work lives in meta_single_page.
func (it *BookmarkItem) VariantURLs(q domain.Quality, allPages bool) []string {
	if it.PageCount <= 1 || !allPages {
		if q == domain.QualityOriginal && it.MetaSinglePage != nil && it.MetaSinglePage.OriginalImageURL != "" {
			return []string{it.MetaSinglePage.OriginalImageURL}
		}
		if u := it.ImageURLs.URLForQuality(q); u != "" {
			return []string{u}
		}
		return nil
	}

	urls := make([]string, 0, len(it.MetaPages))
	for i := range it.MetaPages {
		if u := it.MetaPages[i].ImageURLs.URLForQuality(q); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// AllVariantURLs returns every variant URL the item knows about, across
// all tiers and pages. Used for owner-scoped cache clearing and size
// accounting, where any of them may have been preloaded.
func (it *BookmarkItem) AllVariantURLs() []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	add(it.ImageURLs.SquareMedium)
	add(it.ImageURLs.Medium)
	add(it.ImageURLs.Large)
	add(it.ImageURLs.Original)
	if it.MetaSinglePage != nil {
		add(it.MetaSinglePage.OriginalImageURL)
	}
	for i := range it.MetaPages {
		add(it.MetaPages[i].ImageURLs.SquareMedium)
		add(it.MetaPages[i].ImageURLs.Medium)
		add(it.MetaPages[i].ImageURLs.Large)
		add(it.MetaPages[i].ImageURLs.Original)
	}
	return urls
}

// BookmarkPage is one page of the bookmark listing. NextURL is the
// pagination cursor; empty means the last page.
type BookmarkPage struct {
	Items   []BookmarkItem `json:"illusts"`
	NextURL string         `json:"next_url,omitempty"`
}

// BookmarkSource lists a user's bookmarked works. Paging is cursor
// driven: each page's NextURL feeds the next call, so listing is
// inherently sequential.
type BookmarkSource interface {
	// ListBookmarks fetches the first page for a user and restrict class
	ListBookmarks(ctx context.Context, userID, restrict string) (*BookmarkPage, error)

	// ListBookmarksNext fetches a follow-up page by its cursor URL
	ListBookmarksNext(ctx context.Context, nextURL string) (*BookmarkPage, error)
}

// ImageFetcher fetches raw image bytes for a URL
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// UgoiraSource resolves the frame archive URL of an ugoira work
type UgoiraSource interface {
	UgoiraArchiveURL(ctx context.Context, illustID int64) (string, error)
}
