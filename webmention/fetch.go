package webmention

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarkWieczorek/bridgy-fed/util"
)

var fetchClient = &http.Client{Timeout: 30 * time.Second}

// fetchSource downloads the source page. Connection-level failures come back
// as a user-facing fetch error scoped to the source domain; error statuses
// from the source server likewise mean the page can't be ingested.
func fetchSource(source string) (body []byte, finalURL string, err *IngestError) {
	req, reqErr := http.NewRequest("GET", source, nil)
	if reqErr != nil {
		return nil, "", badRequest(fmt.Sprintf("Bad source URL: %s: %v", source, reqErr))
	}
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, doErr := fetchClient.Do(req)
	if doErr != nil {
		return nil, "", &IngestError{
			Kind:    KindFetch,
			Message: fmt.Sprintf("Couldn't fetch %s", source),
			Status:  http.StatusBadGateway,
		}
	}
	defer resp.Body.Close()

	finalURL = resp.Request.URL.String()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, finalURL, &IngestError{
			Kind:    KindFetch,
			Message: fmt.Sprintf("Couldn't fetch %s: HTTP %d", source, resp.StatusCode),
			Status:  http.StatusBadGateway,
		}
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, finalURL, &IngestError{
			Kind:    KindFetch,
			Message: fmt.Sprintf("Couldn't fetch %s: %v", source, readErr),
			Status:  http.StatusBadGateway,
		}
	}

	return body, finalURL, nil
}
