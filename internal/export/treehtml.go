package export

import (
	"fmt"
	"html"
	"strings"

	"threadsift/internal/extract"
)

// TreeToHTML renders one root comment and its reply tree as nested HTML.
// Author and body text are escaped; reply order is preserved.
func TreeToHTML(root extract.Comment) string {
	var sb strings.Builder
	renderComment(&sb, root, 0)
	return sb.String()
}

func renderComment(sb *strings.Builder, c extract.Comment, depth int) {
	fmt.Fprintf(sb, "<article class=\"comment depth-%d\"%s>\n", depth, commentIDAttr(c.ID))
	fmt.Fprintf(sb, "<header class=\"comment-author\">%s</header>\n", html.EscapeString(c.Author))
	fmt.Fprintf(sb, "<div class=\"comment-body\">%s</div>\n", bodyHTML(c.Text))

	if len(c.Replies) > 0 {
		sb.WriteString("<div class=\"replies\">\n")
		for _, reply := range c.Replies {
			renderComment(sb, reply, depth+1)
		}
		sb.WriteString("</div>\n")
	}
	sb.WriteString("</article>\n")
}

// commentIDAttr formats the opaque comment id as a data attribute. Ids are
// whatever scalar the capture carried; nil means the node had none.
func commentIDAttr(id any) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf(" data-comment-id=%q", fmt.Sprintf("%v", id))
}

// bodyHTML escapes the comment text and keeps line breaks visible.
func bodyHTML(text string) string {
	escaped := html.EscapeString(text)
	return strings.ReplaceAll(escaped, "\n", "<br>\n")
}
