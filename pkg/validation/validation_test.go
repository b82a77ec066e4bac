package validation

import (
	"strings"
	"testing"
)

func TestValidateMeetingID(t *testing.T) {
	tests := []struct {
		name      string
		meetingID string
		wantErr   bool
	}{
		{"simple", "m1", false},
		{"bbb internal id", "183f0bf3a0982a127bdb8161e0c44eb696b3e75c-1700000000000", false},
		{"dots and underscores", "room_1.a", false},
		{"empty", "", true},
		{"leading dash", "-m1", true},
		{"slash", "a/b", true},
		{"space", "my room", true},
		{"unicode", "комната", true},
		{"too long", strings.Repeat("a", MaxMeetingIDLength+1), true},
		{"max length", strings.Repeat("a", MaxMeetingIDLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMeetingID(tt.meetingID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMeetingID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRTMPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"rtmp", "rtmp://x/live", false},
		{"any scheme accepted", "srt://host:9000", false},
		{"empty", "", true},
		{"blank", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRTMPURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRTMPURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://bbb.example.com/bigbluebutton/", false},
		{"http", "http://localhost:8090", false},
		{"empty", "", true},
		{"no scheme", "bbb.example.com", true},
		{"ftp", "ftp://bbb.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
