package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const MaxMeetingIDLength = 200

var (
	// MeetingIDRegex keeps meeting ids inside the container-name alphabet so
	// the derived worker name is always valid and distinct ids never collide.
	MeetingIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

// ValidateMeetingID validates a meeting identifier
func ValidateMeetingID(meetingID string) error {
	if meetingID == "" {
		return fmt.Errorf("meetingId is required")
	}
	if len(meetingID) > MaxMeetingIDLength {
		return fmt.Errorf("meetingId is too long (max %d characters)", MaxMeetingIDLength)
	}
	if !MeetingIDRegex.MatchString(meetingID) {
		return fmt.Errorf("meetingId contains invalid characters (letters, digits, '_', '.', '-' allowed)")
	}
	return nil
}

// ValidateRTMPURL only checks presence; the destination is the worker's
// concern, not ours.
func ValidateRTMPURL(rtmpURL string) error {
	return ValidateNonEmptyString(rtmpURL, "rtmpUrl")
}

// ValidateURL validates an absolute http(s) URL
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
