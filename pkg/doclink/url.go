package doclink

import (
	"net/url"
	"strconv"
	"strings"
)

// pageKey fragment key carrying the page anchor
const pageKey = "page"

// WithPage replaces the fragment of rawURL with #page=<n>
// WithPage 将链接锚点设置为 #page=<n>
func WithPage(rawURL string, page int) string {
	return StripFragment(rawURL) + "#" + pageKey + "=" + strconv.Itoa(page)
}

// StripFragment drops everything from the first '#'
func StripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// PageFromURL reads the page anchor from the #page=<n> fragment
// PageFromURL 从 #page=<n> 锚点读取页码
func PageFromURL(rawURL string) (int, bool) {
	i := strings.IndexByte(rawURL, '#')
	if i < 0 {
		return 0, false
	}
	values, err := url.ParseQuery(rawURL[i+1:])
	if err != nil {
		return 0, false
	}
	page, err := strconv.Atoi(values.Get(pageKey))
	if err != nil {
		return 0, false
	}
	return page, true
}
