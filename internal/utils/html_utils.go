package utils

import (
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Heading 章节目录项
type Heading struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

// EnhanceHTMLContent 为图片增加懒加载与安全属性，为表格增加横向滚动容器
func EnhanceHTMLContent(htmlStr string) template.HTML {
	if htmlStr == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return template.HTML(htmlStr)
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("referrerpolicy", "no-referrer")
		s.SetAttr("loading", "lazy")
	})

	doc.Find("table").Each(func(i int, s *goquery.Selection) {
		s.WrapHtml(`<div class="table-wrapper"></div>`)
	})

	// goquery renders full document tags if missing, we just want the body content
	html, _ := doc.Find("body").Html()
	if html == "" {
		html, _ = doc.Html()
	}

	return template.HTML(html)
}

// ExtractHeadings 提取 h2/h3 作为章节目录
func ExtractHeadings(htmlStr string) []Heading {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}
	var out []Heading
	doc.Find("h2, h3").Each(func(i int, s *goquery.Selection) {
		level := 2
		if goquery.NodeName(s) == "h3" {
			level = 3
		}
		id, _ := s.Attr("id")
		out = append(out, Heading{ID: id, Text: strings.TrimSpace(s.Text()), Level: level})
	})
	return out
}
