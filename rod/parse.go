package rod

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/mjarosz/bookdl"
)

// linkResponse is the JSON shape returned by the host's link endpoints:
//
//	{
//	    "code": 200,
//	    "downurl": "https://88-cucc-data.tv002.com/d.../file.zip?...",
//	    "file_size": 2604814,
//	    "file_name": "10019-智慧未来.zip",
//	    "xhr": true
//	}
type linkResponse struct {
	Code     int    `json:"code"`
	DownURL  string `json:"downurl"`
	DownURL2 string `json:"down_url"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

var fnameParam = regexp.MustCompile(`fname=([^&]+)`)

// ParseLinkResponse parses a link endpoint response body into a DirectLink.
// Returns nil when the body is not JSON, carries a non-200 "code" field, or
// has no URL: such responses mean "no usable link yet" and are ignored
// rather than surfaced as links.
func ParseLinkResponse(body string) *bookdl.DirectLink {
	var resp linkResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil
	}

	if resp.Code != 200 {
		return nil
	}

	cdnURL := resp.DownURL
	if cdnURL == "" {
		cdnURL = resp.DownURL2
	}
	if cdnURL == "" {
		cdnURL = resp.URL
	}
	if cdnURL == "" {
		return nil
	}

	filename := resp.FileName
	if filename == "" {
		filename = filenameFromURL(cdnURL)
	}

	return &bookdl.DirectLink{URL: cdnURL, Filename: filename, Size: resp.FileSize}
}

// filenameFromURL recovers a filename from the CDN URL itself: the fname
// query parameter when present, otherwise the last path segment.
func filenameFromURL(cdnURL string) string {
	if m := fnameParam.FindStringSubmatch(cdnURL); m != nil {
		if unescaped, err := url.QueryUnescape(m[1]); err == nil {
			return unescaped
		}
		return m[1]
	}

	trimmed := cdnURL
	if i := strings.Index(trimmed, "?"); i != -1 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i != -1 {
		return trimmed[i+1:]
	}
	return trimmed
}
