// Package bbb resolves meeting credentials through the BigBlueButton API.
package bbb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/tracing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	callGetMeetingInfo = "getMeetingInfo"

	returnCodeSuccess = "SUCCESS"
	messageKeyMissing = "notFound"

	maxResponseBytes = 1 << 20
)

// Client calls the BigBlueButton API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient accepts base URLs with or without a trailing slash and with or
// without the /api suffix.
func NewClient(baseURL, secret string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL: normalizeBaseURL(baseURL),
		secret:  secret,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	return base
}

// Checksum signs an API call the way BigBlueButton expects:
// hex(sha1(call + query + secret)).
func Checksum(call, query, secret string) string {
	sum := sha1.Sum([]byte(call + query + secret))
	return hex.EncodeToString(sum[:])
}

// CallURL returns the signed URL for call with the given query parameters.
func (c *Client) CallURL(call string, params url.Values) string {
	query := params.Encode()
	checksum := Checksum(call, query, c.secret)
	if query == "" {
		return fmt.Sprintf("%s/%s?checksum=%s", c.baseURL, call, checksum)
	}
	return fmt.Sprintf("%s/%s?%s&checksum=%s", c.baseURL, call, query, checksum)
}

type meetingInfoResponse struct {
	XMLName    xml.Name `xml:"response"`
	ReturnCode string   `xml:"returncode"`
	MessageKey string   `xml:"messageKey"`
	Message    string   `xml:"message"`
	MeetingID  string   `xml:"meetingID"`
	AttendeePW string   `xml:"attendeePW"`
	Running    bool     `xml:"running"`
}

// GetMeetingInfo fetches the attendee password of a meeting. Transport
// failures wrap domain.ErrDirectoryUnavailable; shape failures wrap
// domain.ErrMalformedResponse or domain.ErrMeetingNotFound.
func (c *Client) GetMeetingInfo(ctx context.Context, meetingID string) (domain.MeetingCredential, error) {
	ctx, span := tracing.TraceDirectoryCall(ctx, callGetMeetingInfo, meetingID)
	defer span.End()

	cred, err := c.getMeetingInfo(ctx, meetingID)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return cred, err
}

func (c *Client) getMeetingInfo(ctx context.Context, meetingID string) (domain.MeetingCredential, error) {
	params := url.Values{}
	params.Set("meetingID", meetingID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CallURL(callGetMeetingInfo, params), nil)
	if err != nil {
		return domain.MeetingCredential{}, fmt.Errorf("%w: build request: %v", domain.ErrDirectoryUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the checksum, keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return domain.MeetingCredential{}, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debugw("meeting directory responded",
		"call", callGetMeetingInfo,
		"meeting_id", meetingID,
		"status", resp.StatusCode,
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return domain.MeetingCredential{}, fmt.Errorf("%w: status %d", domain.ErrDirectoryUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.MeetingCredential{}, fmt.Errorf("%w: unexpected status %d", domain.ErrMalformedResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.MeetingCredential{}, fmt.Errorf("%w: read body: %v", domain.ErrDirectoryUnavailable, err)
	}

	return parseMeetingInfo(body)
}

func parseMeetingInfo(body []byte) (domain.MeetingCredential, error) {
	var info meetingInfoResponse
	if err := xml.Unmarshal(body, &info); err != nil {
		return domain.MeetingCredential{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	if info.ReturnCode != returnCodeSuccess {
		if info.MessageKey == messageKeyMissing {
			return domain.MeetingCredential{}, domain.ErrMeetingNotFound
		}
		if info.ReturnCode == "" {
			return domain.MeetingCredential{}, fmt.Errorf("%w: missing returncode", domain.ErrMalformedResponse)
		}
		return domain.MeetingCredential{}, fmt.Errorf("%w: %s %s", domain.ErrMalformedResponse, info.ReturnCode, info.MessageKey)
	}

	if info.AttendeePW == "" {
		return domain.MeetingCredential{}, fmt.Errorf("%w: missing attendeePW", domain.ErrMalformedResponse)
	}
	return domain.MeetingCredential{AttendeePassword: info.AttendeePW}, nil
}

var _ ports.MeetingDirectory = (*Client)(nil)
