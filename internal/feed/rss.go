// Package feed renders a podcast's published episodes as an RSS feed.
package feed

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/eduncan911/podcast"

	"podcast-pipeline/internal/models"
)

// GenerateRSS builds the feed for podcast. Audio enclosures point at the
// server's audio route under baseURL; episodes without audio are left out.
func GenerateRSS(p *models.Podcast, episodes []models.Episode, baseURL string) (string, error) {
	var lastBuild time.Time
	for _, ep := range episodes {
		if ep.PublishedAt != nil && ep.PublishedAt.After(lastBuild) {
			lastBuild = *ep.PublishedAt
		}
	}

	description := p.Description
	if description == "" {
		description = p.Name
	}
	created := p.CreatedAt
	feed := podcast.New(p.Name, fmt.Sprintf("%s/feeds/%s.xml", baseURL, p.ID), description, &created, &lastBuild)
	if p.OwnerEmail != "" {
		feed.AddAuthor(p.Name, p.OwnerEmail)
	}

	for _, ep := range episodes {
		if !ep.HasAudio() {
			continue
		}
		item := podcast.Item{
			Title:       deref(ep.Title, "Episode "+ep.ID),
			Description: deref(ep.Description, deref(ep.Title, p.Name)),
			PubDate:     ep.PublishedAt,
		}
		if item.PubDate == nil {
			item.PubDate = &ep.UpdatedAt
		}
		item.AddEnclosure(fmt.Sprintf("%s/audio/%s", baseURL, ep.ID), enclosureType(*ep.AudioURL), 0)
		if ep.Duration != nil {
			item.AddDuration(int64(*ep.Duration))
		}
		if ep.CoverImage != nil && strings.HasPrefix(*ep.CoverImage, "http") {
			item.AddImage(*ep.CoverImage)
		}
		if _, err := feed.AddItem(item); err != nil {
			return "", fmt.Errorf("failed to add episode %s to feed: %w", ep.ID, err)
		}
	}

	return feed.String(), nil
}

func enclosureType(audioRef string) podcast.EnclosureType {
	switch strings.ToLower(path.Ext(audioRef)) {
	case ".m4a":
		return podcast.M4A
	default:
		return podcast.MP3
	}
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
