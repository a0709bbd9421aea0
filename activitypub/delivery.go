package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Response captures what a remote server answered to a delivery or fetch.
type Response struct {
	StatusCode int
	Body       string
	URL        string // final URL after redirects
}

// GatewayError means the remote endpoint could not be reached at all:
// connection refused, DNS failure, timeout. The delivery path is broken, so
// callers surface it instead of continuing silently.
type GatewayError struct {
	URL string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("couldn't reach %s: %v", e.URL, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPError means the remote answered with an error status. The status and
// body are kept so they can be passed through to the caller.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// NotAS2Error means the target responded, but not with an ActivityStreams
// object; the target is not federatable and should be dropped, not failed.
type NotAS2Error struct {
	URL         string
	StatusCode  int
	ContentType string
}

func (e *NotAS2Error) Error() string {
	return fmt.Sprintf("%s is not an ActivityStreams object (status %d, content type %q)", e.URL, e.StatusCode, e.ContentType)
}

// SignedPost delivers an activity to a remote inbox, signed with the user's
// key. Connection-level failures come back as *GatewayError, HTTP error
// statuses as *HTTPError.
func SignedPost(inboxURL string, payload map[string]any, user *domain.User, conf *util.AppConfig) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity: %w", err)
	}

	// Calculate digest for HTTP signature
	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", inboxURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", util.GetNameAndVersion())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Digest", digest)

	privateKey, err := ParsePrivateKey(user.WebPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	keyID := fmt.Sprintf("%s#key", conf.HostURL(user.Domain))
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &GatewayError{URL: inboxURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	result := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		URL:        resp.Request.URL.String(),
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{URL: inboxURL, StatusCode: resp.StatusCode, Body: result.Body}
	}

	log.Printf("Delivery: Sent %s to %s (status: %d)", Type(payload), inboxURL, resp.StatusCode)
	return result, nil
}

// GetAS2 fetches a URL negotiating for an ActivityStreams representation.
// Returns the decoded object and the final URL after redirects. A reachable
// target that answers with something else (HTML, an error status) yields
// *NotAS2Error so callers can drop it.
func GetAS2(targetURL string) (map[string]any, string, error) {
	req, err := http.NewRequest("GET", targetURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", &GatewayError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !isAS2ContentType(contentType) {
		return nil, finalURL, &NotAS2Error{URL: targetURL, StatusCode: resp.StatusCode, ContentType: contentType}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, finalURL, &GatewayError{URL: targetURL, Err: err}
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, finalURL, &NotAS2Error{URL: targetURL, StatusCode: resp.StatusCode, ContentType: contentType}
	}

	return obj, finalURL, nil
}

func isAS2ContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "application/activity+json") ||
		strings.HasPrefix(contentType, "application/ld+json") ||
		strings.HasPrefix(contentType, "application/json")
}
