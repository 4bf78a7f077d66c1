package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/copilot/internal/events"
	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// MaxPageSize limits result pages to 10MB.
const MaxPageSize = 10 * 1024 * 1024

// readyMarker appears in a results page once thumbnails are served.
const readyMarker = "th.bing.com/th"

var (
	ErrEmptyPage    = errors.New("empty result page")
	ErrPageTooLarge = fmt.Errorf("result page exceeds %d bytes", MaxPageSize)
)

// IsReady reports whether a results page contains generated images.
func IsReady(page []byte) bool {
	return bytes.Contains(page, []byte(readyMarker))
}

// LoadHTML parses a page after converting it to UTF-8.
func LoadHTML(page []byte) (*goquery.Document, error) {
	if len(page) == 0 {
		return nil, ErrEmptyPage
	}
	if len(page) > MaxPageSize {
		return nil, ErrPageTooLarge
	}

	utf8Reader, err := charset.NewReaderLabel(detectCharset(page), bytes.NewReader(page))
	if err != nil {
		return goquery.NewDocumentFromReader(bytes.NewReader(page))
	}
	return goquery.NewDocumentFromReader(utf8Reader)
}

func detectCharset(data []byte) string {
	result, err := chardet.NewHtmlDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// ExtractImageLinks returns the image sources of doc in document order with
// size parameters removed. Tracking pixels, analytics scripts and non-HTTPS
// links are skipped.
func ExtractImageLinks(doc *goquery.Document) []string {
	var links []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		link, _, _ := strings.Cut(strings.TrimSpace(src), "?w=")
		if keepLink(link) {
			links = append(links, link)
		}
	})
	return links
}

func keepLink(link string) bool {
	return strings.HasPrefix(link, "https://") &&
		!strings.Contains(link, "r.bing.com") &&
		!strings.HasPrefix(link, "https://www.clarity.")
}

// ImagesFromLinks names links bing_image_1.jpg, bing_image_2.jpg and so on.
func ImagesFromLinks(links []string) []events.Image {
	images := make([]events.Image, len(links))
	for i, link := range links {
		images[i] = events.Image{
			Name: fmt.Sprintf("bing_image_%d.jpg", i+1),
			URL:  link,
		}
	}
	return images
}

// ParseImages loads a ready results page and returns its images.
func ParseImages(page []byte) ([]events.Image, error) {
	doc, err := LoadHTML(page)
	if err != nil {
		return nil, err
	}
	links := ExtractImageLinks(doc)
	if len(links) == 0 {
		return nil, ErrNoImages
	}
	return ImagesFromLinks(links), nil
}
