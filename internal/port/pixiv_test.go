package port

import (
	"reflect"
	"testing"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
)

func multiPageItem() BookmarkItem {
	return BookmarkItem{
		ID:        1,
		PageCount: 2,
		ImageURLs: ImageURLs{Medium: "m0", Large: "l0"},
		MetaPages: []MetaPage{
			{ImageURLs: ImageURLs{Medium: "m0", Large: "l0", Original: "o0"}},
			{ImageURLs: ImageURLs{Medium: "m1", Large: "l1", Original: "o1"}},
		},
	}
}

func TestImageURLs_URLForQuality(t *testing.T) {
	urls := ImageURLs{Medium: "m", Large: "l", Original: "o"}

	tests := []struct {
		quality domain.Quality
		want    string
	}{
		{domain.QualityMedium, "m"},
		{domain.QualityLarge, "l"},
		{domain.QualityOriginal, "o"},
	}
	for _, tt := range tests {
		if got := urls.URLForQuality(tt.quality); got != tt.want {
			t.Errorf("URLForQuality(%v) = %q, want %q", tt.quality, got, tt.want)
		}
	}

	// A listing without an original variant falls back to large
	partial := ImageURLs{Medium: "m", Large: "l"}
	if got := partial.URLForQuality(domain.QualityOriginal); got != "l" {
		t.Errorf("URLForQuality(original) without original = %q, want %q", got, "l")
	}
}

func TestBookmarkItem_VariantURLs(t *testing.T) {
	single := BookmarkItem{
		ID:             1,
		PageCount:      1,
		ImageURLs:      ImageURLs{Medium: "m", Large: "l"},
		MetaSinglePage: &MetaSinglePage{OriginalImageURL: "orig"},
	}

	tests := []struct {
		name     string
		item     BookmarkItem
		quality  domain.Quality
		allPages bool
		want     []string
	}{
		{"single page large", single, domain.QualityLarge, false, []string{"l"}},
		{"single page original comes from meta_single_page", single, domain.QualityOriginal, false, []string{"orig"}},
		{"multi page first only", multiPageItem(), domain.QualityLarge, false, []string{"l0"}},
		{"multi page all pages", multiPageItem(), domain.QualityLarge, true, []string{"l0", "l1"}},
		{"multi page all pages original", multiPageItem(), domain.QualityOriginal, true, []string{"o0", "o1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.item.VariantURLs(tt.quality, tt.allPages)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("VariantURLs(%v, %v) = %v, want %v", tt.quality, tt.allPages, got, tt.want)
			}
		})
	}
}

func TestBookmarkItem_AllVariantURLs(t *testing.T) {
	item := multiPageItem()
	item.MetaSinglePage = &MetaSinglePage{OriginalImageURL: "orig"}

	got := item.AllVariantURLs()

	want := map[string]bool{
		"m0": true, "l0": true, "o0": true,
		"m1": true, "l1": true, "o1": true,
		"orig": true,
	}
	if len(got) != len(want) {
		t.Fatalf("AllVariantURLs() = %v, want %d distinct urls", got, len(want))
	}
	seen := make(map[string]bool)
	for _, u := range got {
		if seen[u] {
			t.Errorf("AllVariantURLs() returned %q twice", u)
		}
		seen[u] = true
		if !want[u] {
			t.Errorf("AllVariantURLs() returned unexpected %q", u)
		}
	}
}

func TestBookmarkItem_IsUgoira(t *testing.T) {
	if (&BookmarkItem{Type: "illust"}).IsUgoira() {
		t.Error("illust reported as ugoira")
	}
	if !(&BookmarkItem{Type: "ugoira"}).IsUgoira() {
		t.Error("ugoira not reported as ugoira")
	}
}
