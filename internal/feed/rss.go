package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"prcast/internal/audio"
	"prcast/internal/config"
)

// Channel holds the presentation metadata for one rendered feed.
type Channel struct {
	Title       string
	Description string
	Author      string
	Email       string
	Language    string
	Category    string
	Image       string
	Link        string
}

// ChannelFor derives channel metadata for a feed id from the podcast config.
// Repository feeds get the repo name appended to the channel title and may
// carry a per-repo image.
func ChannelFor(cfg *config.Config, feedID string) Channel {
	channel := Channel{
		Title:       cfg.Podcast.Title,
		Description: cfg.Podcast.Description,
		Author:      cfg.Podcast.Author,
		Email:       cfg.Podcast.Email,
		Language:    cfg.Podcast.Language,
		Category:    cfg.Podcast.Category,
		Image:       cfg.Podcast.Image,
		Link:        cfg.Podcast.BaseURL,
	}
	if repo, ok := strings.CutPrefix(feedID, "repo:"); ok {
		channel.Title = fmt.Sprintf("%s: %s", cfg.Podcast.Title, repo)
		channel.Description = fmt.Sprintf("%s Episodes for %s.", cfg.Podcast.Description, repo)
		if image, found := cfg.Podcast.ImageMap[repo]; found {
			channel.Image = image
		}
	}
	return channel
}

// RenderRSS produces the RSS 2.0 document for a feed.
func RenderRSS(channel Channel, entries []Entry, baseURL string) (string, error) {
	now := time.Now().UTC()
	out := &feeds.Feed{
		Title:       channel.Title,
		Link:        &feeds.Link{Href: channel.Link},
		Description: channel.Description,
		Author:      &feeds.Author{Name: channel.Author, Email: channel.Email},
		Updated:     now,
	}
	if channel.Image != "" {
		out.Image = &feeds.Image{Url: channel.Image, Title: channel.Title, Link: channel.Link}
	}

	// Newest first, as podcast clients expect.
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		item := &feeds.Item{
			Id:          entry.EpisodeID,
			Title:       entry.Title,
			Description: entry.Description,
			Link:        &feeds.Link{Href: entry.PRURL},
			Created:     entry.PublishedAt,
		}
		if entry.AudioFile != "" {
			item.Enclosure = &feeds.Enclosure{
				Url:    audioURL(baseURL, entry.AudioFile),
				Length: "0",
				Type:   "audio/mpeg",
			}
		}
		out.Items = append(out.Items, item)
	}
	return out.ToRss()
}

// FilePath returns where a feed's RSS document lives under feedsDir.
func FilePath(feedsDir, feedID string) string {
	name := "master.xml"
	if repo, ok := strings.CutPrefix(feedID, "repo:"); ok {
		name = audio.SanitizeRepo(repo) + ".xml"
	}
	return filepath.Join(feedsDir, name)
}

// WriteFile renders the feed and writes it atomically.
func WriteFile(path, document string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create feeds directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(document), 0o644); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize feed: %w", err)
	}
	return nil
}

func audioURL(baseURL, audioFile string) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/audio/" + strings.TrimLeft(filepath.ToSlash(audioFile), "/")
}
