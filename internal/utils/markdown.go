package utils

import (
	"bytes"
	"html/template"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// 百科章节常见脚注与术语定义
var wikiMarkdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Footnote,
		extension.DefinitionList,
		extension.Typographer,
	),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithXHTML()),
)

var contentPolicy = newContentPolicy()

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowImages()
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "li", "sup")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+-]+$`)).OnElements("code")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^footnote(s|-ref|-backref)?$`)).OnElements("a", "div", "sup")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// RenderMarkdown 渲染模型生成的章节或用户帖子，输出经过清洗
func RenderMarkdown(source string) template.HTML {
	var buf bytes.Buffer
	if err := wikiMarkdown.Convert([]byte(source), &buf); err != nil {
		return template.HTML(contentPolicy.Sanitize(template.HTMLEscapeString(source)))
	}
	return EnhanceHTMLContent(contentPolicy.Sanitize(buf.String()))
}
