package model

import (
	"errors"
	"net/url"
)

// Video is a catalog entry: one playable media locator (typically an HLS manifest).
// SourceURL is the identity key.
type Video struct {
	SourceURL string
}

var (
	ErrEmptySourceURL   = errors.New("source URL cannot be empty")
	ErrInvalidSourceURL = errors.New("source URL must be an absolute URL")
)

// NewVideo validates sourceURL and returns a Video bound to it.
func NewVideo(sourceURL string) (Video, error) {
	if sourceURL == "" {
		return Video{}, ErrEmptySourceURL
	}
	u, err := url.Parse(sourceURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Video{}, ErrInvalidSourceURL
	}
	return Video{SourceURL: sourceURL}, nil
}

// VideosFromURLs converts raw locators into Videos, skipping invalid ones.
// The second return value counts the skipped entries.
func VideosFromURLs(urls []string) ([]Video, int) {
	videos := make([]Video, 0, len(urls))
	skipped := 0
	for _, raw := range urls {
		v, err := NewVideo(raw)
		if err != nil {
			skipped++
			continue
		}
		videos = append(videos, v)
	}
	return videos, skipped
}
