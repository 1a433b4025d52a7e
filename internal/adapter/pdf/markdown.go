package pdf

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// documentCSS is the print stylesheet applied to generated documents.
const documentCSS = `
body {
	font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
	font-size: 11pt;
	line-height: 1.5;
	color: #1a1a1a;
	max-width: 46em;
	margin: 0 auto;
	padding: 2em;
}
h1 {
	font-size: 20pt;
	border-bottom: 2px solid #2c3e50;
	padding-bottom: 0.2em;
}
h2 {
	font-size: 15pt;
	color: #2c3e50;
	margin-top: 1.4em;
}
h3 { font-size: 12pt; }
code {
	font-family: "SF Mono", Menlo, Consolas, monospace;
	font-size: 9.5pt;
	background: #f4f4f4;
	padding: 0.1em 0.3em;
	border-radius: 3px;
}
table {
	border-collapse: collapse;
	width: 100%;
}
th, td {
	border: 1px solid #ccc;
	padding: 0.4em 0.6em;
	text-align: left;
}
blockquote {
	border-left: 3px solid #ccc;
	margin-left: 0;
	padding-left: 1em;
	color: #555;
}
`

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderHTML converts a markdown document to a self-contained HTML page
// ready for printing.
func renderHTML(md string, title string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>%s</style>
</head>
<body>
%s
</body>
</html>`, html.EscapeString(title), documentCSS, body.String()), nil
}
