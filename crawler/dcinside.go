package crawler

import (
	"net/url"
	"strings"

	"github.com/gocolly/colly"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	Logger "github.com/hsh0702/boardsum/utils/log"
)

// DCInsideListing scrapes one board listing page.
type DCInsideListing struct {
	// TargetUrl is the full listing url including board id and mode.
	TargetUrl string
}

// FetchPosts scrapes the listing rows. Rows that lack a title link are
// kept with empty fields rather than dropped, filtering is the producer's
// job.
func (listing DCInsideListing) FetchPosts() ([]DCInsidePost, error) {
	base, err := url.Parse(listing.TargetUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid listing url %s", listing.TargetUrl)
	}

	posts := []DCInsidePost{}
	var scrapeErr error

	c := colly.NewCollector()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", DesktopUserAgent)
	})
	c.OnHTML("tr.ub-content.us-post", func(elem *colly.HTMLElement) {
		row := elem.DOM

		post := DCInsidePost{
			ExternalId:  elem.Attr("data-no"),
			Number:      strings.TrimSpace(row.Find("td.gall_num").Text()),
			Writer:      normalizeSpace(row.Find("td.gall_writer").Text()),
			DateDisplay: strings.TrimSpace(row.Find("td.gall_date").Text()),
			Views:       strings.TrimSpace(row.Find("td.gall_count").Text()),
			Recommends:  strings.TrimSpace(row.Find("td.gall_recommend").Text()),
		}
		if dateIso, ok := row.Find("td.gall_date").Attr("title"); ok {
			post.DateIso = dateIso
		}

		subjectCell := row.Find("td.gall_subject")
		if inner := subjectCell.Find(".subject_inner"); inner.Length() > 0 {
			post.Subject = strings.TrimSpace(inner.Text())
		} else {
			post.Subject = strings.TrimSpace(subjectCell.Text())
		}

		titleCell := row.Find("td.gall_tit")
		link := titleCell.Find("a").First()
		if link.Length() > 0 {
			post.Title = normalizeSpace(link.Text())
			if href, ok := link.Attr("href"); ok {
				if resolved, err := base.Parse(href); err == nil {
					post.Url = resolved.String()
				}
			}
		}
		post.CommentLabel = strings.TrimSpace(titleCell.Find("span.reply_num").Text())

		posts = append(posts, post)
	})
	c.OnError(func(r *colly.Response, err error) {
		Logger.Log.WithFields(logrus.Fields{"source": "dcinside"}).
			Error("Request URL:", r.Request.URL, " failed with error:", err)
		scrapeErr = err
	})

	if err := c.Visit(listing.TargetUrl); err != nil {
		return nil, errors.Wrapf(err, "fail to fetch listing %s", listing.TargetUrl)
	}
	if scrapeErr != nil {
		return nil, errors.Wrapf(scrapeErr, "fail to scrape listing %s", listing.TargetUrl)
	}
	return posts, nil
}

// normalizeSpace collapses runs of whitespace into single spaces, the way
// scraped cells with nested markup need.
func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
