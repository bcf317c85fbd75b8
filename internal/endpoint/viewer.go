package endpoint

import (
	"net/url"
	"strings"
)

// ViewerURL builds the launch URL that points the web viewer at a
// session's proxy, e.g.
// http://localhost:9092/?url=rerun%2Bhttp%3A%2F%2Fhost%3A9877%2Fproxy
func ViewerURL(viewerBase, connectURL string) string {
	base := viewerBase
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if connectURL == "" {
		return base
	}
	return base + "?url=" + url.QueryEscape(connectURL)
}
