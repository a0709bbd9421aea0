package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MarkWieczorek/bridgy-fed/db"
	"github.com/MarkWieczorek/bridgy-fed/mf2"
	"github.com/MarkWieczorek/bridgy-fed/util"
	"github.com/gorilla/feeds"
)

// GetFeed renders the recent outbound deliveries as an Atom feed, so bridged
// sites can watch what went out on their behalf.
func GetFeed(database *db.DB, conf *util.AppConfig) (string, error) {
	err, activities := database.ReadRecentActivities(50)
	if err != nil || activities == nil {
		log.Println("Could not get recent activities!", err)
		return "", errors.New("error retrieving recent activities")
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s deliveries", conf.Conf.Domain),
		Link:        &feeds.Link{Href: conf.HostURL("feed")},
		Description: "recent webmentions bridged to the fediverse",
		Author:      &feeds.Author{Name: conf.Conf.Domain},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, activity := range *activities {
		content := mf2.ExtractContent(activity.SourceMF2)
		if content == "" {
			content = activity.Source
		}
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      activity.Id.String(),
				Title:   fmt.Sprintf("%s (%s)", activity.Source, activity.Status),
				Link:    &feeds.Link{Href: activity.Source},
				Content: content,
				Author:  &feeds.Author{Name: activity.Domain},
				Created: activity.CreatedAt,
				Updated: activity.UpdatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToAtom()
}
