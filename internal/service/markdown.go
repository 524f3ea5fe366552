package service

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	reflectionMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	reflectionSanitizer = bluemonday.UGCPolicy()
)

// RenderReflectionHTML 将反思文本按 Markdown 渲染并过滤危险标签。
// 渲染失败时退回转义后的原文，保证页面始终可显示。
func RenderReflectionHTML(text string) template.HTML {
	var buf bytes.Buffer
	if err := reflectionMarkdown.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(reflectionSanitizer.SanitizeBytes(buf.Bytes()))
}
