package notion

import (
	"strings"
	"unicode/utf8"

	"github.com/jomei/notionapi"
)

const (
	// MaxBlocksPerRequest is the Notion limit on children per request.
	MaxBlocksPerRequest = 100
	// MaxTextLength is the Notion limit on a single rich text run.
	MaxTextLength = 2000
)

// Text builds a single plain rich text run.
func Text(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// TitleProp builds a title property.
func TitleProp(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: Text(s)}
}

// RichTextProp builds a rich text property truncated to MaxTextLength.
func RichTextProp(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: Text(truncate(s, MaxTextLength))}
}

// URLProp builds a URL property.
func URLProp(s string) notionapi.URLProperty {
	return notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: s}
}

// NumberProp builds a number property.
func NumberProp(v float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: v}
}

// SelectProp builds a select property.
func SelectProp(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

// MarkdownBlocks converts markdown into heading and paragraph blocks. Lines
// starting with "#" become headings; other lines are grouped into paragraphs
// split on blank lines and chunked to MaxTextLength.
func MarkdownBlocks(md string) []notionapi.Block {
	var blocks []notionapi.Block
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		for _, chunk := range chunk(strings.Join(para, "\n"), MaxTextLength) {
			blocks = append(blocks, paragraph(chunk))
		}
		para = para[:0]
	}

	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case strings.HasPrefix(trimmed, "#"):
			flush()
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			blocks = append(blocks, heading(level, strings.TrimSpace(strings.TrimLeft(trimmed, "#"))))
		default:
			para = append(para, line)
		}
	}
	flush()
	return blocks
}

func paragraph(s string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
		Paragraph:  notionapi.Paragraph{RichText: Text(s)},
	}
}

func heading(level int, s string) notionapi.Block {
	s = truncate(s, MaxTextLength)
	switch level {
	case 1:
		return &notionapi.Heading1Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading1},
			Heading1:   notionapi.Heading{RichText: Text(s)},
		}
	case 2:
		return &notionapi.Heading2Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading2},
			Heading2:   notionapi.Heading{RichText: Text(s)},
		}
	default:
		return &notionapi.Heading3Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading3},
			Heading3:   notionapi.Heading{RichText: Text(s)},
		}
	}
}

// Batches splits blocks into groups of at most n.
func Batches(blocks []notionapi.Block, n int) [][]notionapi.Block {
	if n <= 0 {
		n = MaxBlocksPerRequest
	}
	var out [][]notionapi.Block
	for len(blocks) > 0 {
		k := min(n, len(blocks))
		out = append(out, blocks[:k])
		blocks = blocks[k:]
	}
	return out
}

// chunk splits s into pieces of at most n runes.
func chunk(s string, n int) []string {
	var out []string
	for utf8.RuneCountInString(s) > n {
		runes := []rune(s)
		out = append(out, string(runes[:n]))
		s = string(runes[n:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
