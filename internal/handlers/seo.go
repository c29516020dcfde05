package handlers

import (
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"
	"wikits/internal/services"
	"wikits/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	sitemapLimit = 5000
	feedLimit    = 20
)

var (
	blockRe = regexp.MustCompile(`(?s)(<(?:p|div|h[1-6]|ul|ol|blockquote|pre)[^>]*>.*?</(?:p|div|h[1-6]|ul|ol|blockquote|pre)>)`)
	tagRe   = regexp.MustCompile(`<[^>]*>`)
)

type SEOHandler struct {
	topics   *services.TopicService
	settings *services.SettingsService
	siteURL  string
}

func NewSEOHandler(topics *services.TopicService, settings *services.SettingsService, siteURL string) *SEOHandler {
	return &SEOHandler{topics: topics, settings: settings, siteURL: strings.TrimSuffix(siteURL, "/")}
}

func (h *SEOHandler) RobotsTxt(c *gin.Context) {
	content := fmt.Sprintf(`User-agent: *
Allow: /wiki/

# API 与管理接口
Disallow: /api/
Disallow: /metrics

Sitemap: %s/sitemap.xml
Crawl-delay: 1
`, h.siteURL)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(http.StatusOK, content)
}

// SitemapXML 只收录已生成的主题页
func (h *SEOHandler) SitemapXML(c *gin.Context) {
	topics, err := h.topics.Recent(c.Request.Context(), sitemapLimit, true)
	if err != nil {
		fail(c, err)
		return
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
`)
	for _, t := range topics {
		// 新近更新的主题提高优先级
		priority := 0.6
		if time.Since(t.UpdatedAt) < 7*24*time.Hour {
			priority = 0.8
		}
		fmt.Fprintf(&b, `  <url>
    <loc>%s/wiki/%s</loc>
    <lastmod>%s</lastmod>
    <changefreq>weekly</changefreq>
    <priority>%.1f</priority>
  </url>
`, h.siteURL, escapeXML(t.Slug), t.UpdatedAt.Format("2006-01-02"), priority)
	}
	b.WriteString(`</urlset>`)

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

// RSSFeed 最近生成的主题，RSS 2.0
func (h *SEOHandler) RSSFeed(c *gin.Context) {
	ctx := c.Request.Context()
	topics, err := h.topics.Recent(ctx, feedLimit, true)
	if err != nil {
		fail(c, err)
		return
	}
	siteName, _ := h.settings.Get(ctx, services.SettingSiteName)

	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">
  <channel>
    <title>%s</title>
    <link>%s</link>
    <description>Recently written encyclopedia topics</description>
    <lastBuildDate>%s</lastBuildDate>
    <atom:link href="%s/feed.xml" rel="self" type="application/rss+xml"/>
`, escapeXML(siteName), h.siteURL, time.Now().Format(time.RFC1123Z), h.siteURL)

	for _, t := range topics {
		link := fmt.Sprintf("%s/wiki/%s", h.siteURL, t.Slug)
		content := truncateByParagraph(string(utils.RenderMarkdown(*t.Overview)), 3)
		fmt.Fprintf(&b, `    <item>
      <title>%s</title>
      <link>%s</link>
      <description><![CDATA[%s]]></description>
      <pubDate>%s</pubDate>
      <guid isPermaLink="true">%s</guid>
    </item>
`, escapeXML(t.Title), link, content, t.UpdatedAt.Format(time.RFC1123Z), link)
	}
	b.WriteString("  </channel>\n</rss>")

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

func escapeXML(s string) string {
	return html.EscapeString(s)
}

// truncateByParagraph 保留前几个完整块级元素
func truncateByParagraph(content string, maxBlocks int) string {
	matches := blockRe.FindAllString(content, maxBlocks)
	if len(matches) == 0 {
		runes := []rune(tagRe.ReplaceAllString(content, ""))
		if len(runes) > 300 {
			return string(runes[:300]) + "..."
		}
		return content
	}
	return strings.Join(matches, "\n")
}
