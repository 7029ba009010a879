package notify

import (
	"context"
	"errors"
	"fmt"
	"html"

	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/models"
)

// SubscriberStore resolves who hears about a podcast's episodes.
type SubscriberStore interface {
	GetPodcast(ctx context.Context, id string) (*models.Podcast, error)
	ListSubscriberEmails(ctx context.Context, podcastID string) ([]string, error)
}

// EmailNotifier sends one email per subscriber when an episode goes live.
type EmailNotifier struct {
	sender  Sender
	store   SubscriberStore
	baseURL string
}

func NewEmailNotifier(sender Sender, store SubscriberStore, baseURL string) *EmailNotifier {
	return &EmailNotifier{sender: sender, store: store, baseURL: baseURL}
}

// EpisodePublished notifies every subscriber of ep's podcast. Delivery keeps
// going after a failed recipient; the failures are joined into the result.
func (n *EmailNotifier) EpisodePublished(ctx context.Context, ep *models.Episode) error {
	podcast, err := n.store.GetPodcast(ctx, ep.PodcastID)
	if err != nil {
		return fmt.Errorf("failed to load podcast for notification: %w", err)
	}
	recipients, err := n.store.ListSubscriberEmails(ctx, ep.PodcastID)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	msg := n.compose(podcast, ep)
	var errs []error
	sent := 0
	for _, to := range recipients {
		msg.To = to
		if _, err := n.sender.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
			continue
		}
		sent++
	}

	log.WithFields(log.Fields{
		"episode_id": ep.ID,
		"sent":       sent,
		"failed":     len(errs),
	}).Info("publication emails sent")
	return errors.Join(errs...)
}

func (n *EmailNotifier) compose(podcast *models.Podcast, ep *models.Episode) Message {
	title := "A new episode"
	if ep.Title != nil && *ep.Title != "" {
		title = *ep.Title
	}
	feedURL := fmt.Sprintf("%s/feeds/%s.xml", n.baseURL, podcast.ID)

	text := fmt.Sprintf("%s is out on %s.\n\nListen: %s\n", title, podcast.Name, feedURL)
	body := fmt.Sprintf("<p><strong>%s</strong> is out on %s.</p><p><a href=\"%s\">Listen</a></p>",
		html.EscapeString(title), html.EscapeString(podcast.Name), html.EscapeString(feedURL))
	if ep.Description != nil && *ep.Description != "" {
		text += "\n" + *ep.Description + "\n"
		body += "<p>" + html.EscapeString(*ep.Description) + "</p>"
	}

	return Message{
		Subject: fmt.Sprintf("New on %s: %s", podcast.Name, title),
		Text:    text,
		HTML:    body,
	}
}
