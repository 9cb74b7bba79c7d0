package crawler

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/hsh0702/boardsum/thread"
	Logger "github.com/hsh0702/boardsum/utils/log"
)

const MobileUserAgent = "Mozilla/5.0 (Linux; Android 13; Pixel 6) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Mobile Safari/537.36"

var kst = time.FixedZone("KST", 9*60*60)

var nonDigitRe = regexp.MustCompile(`[^0-9]`)

// DCInsideDetail is everything the worker extracts from one post's detail
// page: the body text, the image urls found in the body, and the raw
// comments from the mobile comment listing.
type DCInsideDetail struct {
	BodyText  string
	ImageUrls []string
	Comments  []thread.DCInsideRawComment
}

// FetchDCInsideDetail loads a post's detail page and its mobile comment
// listing. A comment fetch failure is not fatal, the post is still
// summarizable from body and images alone.
func FetchDCInsideDetail(postUrl string, timeout time.Duration) (*DCInsideDetail, error) {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequest(http.MethodGet, postUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DesktopUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to fetch detail page %s", postUrl)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detail page %s returned status %d", postUrl, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "fail to parse detail page")
	}

	detail := &DCInsideDetail{}
	container := doc.Find("div.write_div").First()
	if container.Length() > 0 {
		detail.BodyText = textWithNewlines(container)
		detail.ImageUrls = extractImageUrls(container, postUrl)
	}

	comments, err := fetchDCInsideComments(postUrl, timeout)
	if err != nil {
		Logger.Log.Warnf("comment fetch failed for %s: %v", postUrl, err)
	} else {
		detail.Comments = comments
	}
	return detail, nil
}

// extractImageUrls collects one url per img node, preferring the lazy-load
// attributes over src. The loading placeholder image is never a real
// asset.
func extractImageUrls(container *goquery.Selection, pageUrl string) []string {
	base, err := url.Parse(pageUrl)
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	urls := []string{}
	container.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"data-origin", "data-original", "data-src", "src"} {
			candidate, ok := img.Attr(attr)
			if !ok || candidate == "" || strings.Contains(candidate, "gallview_loading") {
				continue
			}
			resolved, err := base.Parse(candidate)
			if err != nil {
				continue
			}
			fullUrl := resolved.String()
			if strings.HasPrefix(fullUrl, "//") {
				fullUrl = "https:" + fullUrl
			}
			if !seen[fullUrl] {
				urls = append(urls, fullUrl)
				seen[fullUrl] = true
			}
			break
		}
	})
	return urls
}

// textWithNewlines renders a node's text content with one line per text
// chunk, the way the body container reads when block elements separate
// paragraphs.
func textWithNewlines(selection *goquery.Selection) string {
	lines := []string{}
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if text := strings.TrimSpace(node.Data); text != "" {
				lines = append(lines, text)
			}
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, node := range selection.Nodes {
		walk(node)
	}
	return strings.Join(lines, "\n")
}

// fetchDCInsideComments scrapes the mobile rendition of the post, which
// carries the full comment list in plain markup. Redirects are refused:
// the mobile site redirects deleted posts to the board index and that page
// must not be mistaken for an empty comment list.
func fetchDCInsideComments(postUrl string, timeout time.Duration) ([]thread.DCInsideRawComment, error) {
	parsed, err := url.Parse(postUrl)
	if err != nil {
		return nil, err
	}
	query := parsed.Query()
	boardId := query.Get("id")
	postNo := query.Get("no")
	if boardId == "" || postNo == "" {
		return nil, nil
	}

	mobileUrl := fmt.Sprintf("https://m.dcinside.com/board/%s/%s", boardId, postNo)
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequest(http.MethodGet, mobileUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", MobileUserAgent)
	req.Header.Set("Referer", postUrl)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to fetch mobile page %s", mobileUrl)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mobile page %s returned status %d", mobileUrl, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "fail to parse mobile page")
	}

	return parseDCInsideCommentNodes(doc.Find("ul.all-comment-lst > li")), nil
}

func parseDCInsideCommentNodes(nodes *goquery.Selection) []thread.DCInsideRawComment {
	comments := []thread.DCInsideRawComment{}
	nodes.Each(func(_ int, node *goquery.Selection) {
		classAttr, _ := node.Attr("class")
		classes := strings.Fields(classAttr)
		for _, class := range classes {
			if strings.HasPrefix(class, "comment_write") {
				return
			}
		}

		externalId := firstAttr(node, "data-no", "data-cno", "no", "data-no2")
		if externalId == "" {
			if nodeId, ok := node.Attr("id"); ok && strings.HasPrefix(nodeId, "comment_cnt_") {
				parts := strings.Split(nodeId, "_")
				externalId = parts[len(parts)-1]
			}
		}
		if externalId == "" {
			return
		}

		author := "unknown"
		authorNode := node.Find("a.nick").First()
		if authorNode.Length() > 0 {
			cloned := authorNode.Clone()
			cloned.Find(".ip").Remove()
			if text := strings.TrimSpace(cloned.Text()); text != "" {
				author = text
			}
		}

		content := ""
		contentNode := node.Find("p.txt").First()
		if contentNode.Length() == 0 {
			contentNode = node.Find(".txt").First()
		}
		if contentNode.Length() > 0 {
			content = normalizeSpace(contentNode.Text())
		}

		createdAt := ""
		if dateNode := node.Find("span.date").First(); dateNode.Length() > 0 {
			createdAt = parseDCInsideDatetime(strings.TrimSpace(dateNode.Text()))
		}

		parentId := firstAttr(node, "data-parent", "parent")
		if parentId == "0" {
			parentId = ""
		}

		isDeleted := false
		for _, class := range classes {
			if strings.Contains(class, "del") {
				isDeleted = true
			}
		}

		comments = append(comments, thread.DCInsideRawComment{
			ExternalId: externalId,
			Author:     author,
			Content:    content,
			CreatedAt:  createdAt,
			ParentId:   parentId,
			IsDeleted:  isDeleted,
			Order:      firstAttr(node, "ch"),
			DataType:   firstAttr(node, "data-type"),
			MemberNo:   firstAttr(node, "m_no", "data-m_no"),
		})
	})
	return comments
}

func firstAttr(node *goquery.Selection, names ...string) string {
	for _, name := range names {
		if value, ok := node.Attr(name); ok && value != "" {
			return value
		}
	}
	return ""
}

// parseDCInsideDatetime turns the mobile site's KST display timestamp
// ("2024.01.02 12:34" or the 년/월/일 spelling) into an RFC3339 UTC string,
// empty when the value is unusable.
func parseDCInsideDatetime(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return ""
	}
	cleaned = strings.NewReplacer("년", ".", "월", ".", "일", "", ":", " ").Replace(cleaned)
	parts := strings.Fields(nonDigitRe.ReplaceAllString(cleaned, " "))
	if len(parts) < 5 {
		return ""
	}
	numbers := make([]int, 5)
	for i := 0; i < 5; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return ""
		}
		numbers[i] = n
	}
	parsed := time.Date(numbers[0], time.Month(numbers[1]), numbers[2], numbers[3], numbers[4], 0, 0, kst)
	return parsed.UTC().Format(time.RFC3339)
}
