package main

import (
	"strings"
	"testing"
)

func TestPublishedLink(t *testing.T) {
	tests := []struct {
		name      string
		channel   string
		messageID int
		expected  string
	}{
		{"public username", "@mychannel", 42, "https://t.me/mychannel/42"},
		{"supergroup id", "-1001234567890", 42, "https://t.me/c/1234567890/42"},
		{"plain negative id", "-987654", 7, "https://t.me/c/987654/7"},
		{"positive id", "123456", 7, "https://t.me/c/123456/7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := publishedLink(tt.channel, tt.messageID)
			if got != tt.expected {
				t.Errorf("publishedLink(%q, %d) = %q, want %q", tt.channel, tt.messageID, got, tt.expected)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		max      int
		expected string
	}{
		{"empty", "", 40, "(пустой)"},
		{"short", "короткий текст", 40, "короткий текст"},
		{"truncated", strings.Repeat("а", 50), 40, strings.Repeat("а", 40) + "..."},
		{"exact length", strings.Repeat("b", 40), 40, strings.Repeat("b", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snippet(tt.in, tt.max)
			if got != tt.expected {
				t.Errorf("snippet() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBodyForSend(t *testing.T) {
	tests := []struct {
		name     string
		post     Post
		expected string
	}{
		{"text only", Post{Text: "привет"}, "привет"},
		{"photo without text", Post{PhotoFileID: "file1"}, ""},
		{"fully empty", Post{}, zeroWidthSpace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.post.bodyForSend(); got != tt.expected {
				t.Errorf("bodyForSend() = %q, want %q", got, tt.expected)
			}
		})
	}
}
