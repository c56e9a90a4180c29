package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"docaudit/ooxml"
)

const commentsTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:comments xmlns:w="` + ooxml.NamespaceW + `"></w:comments>`

const relationshipsTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="` + ooxml.NamespaceRelationships + `"></Relationships>`

func compileStartTag(local string) *regexp.Regexp {
	return regexp.MustCompile(`<(?:([A-Za-z_][\w.\-]*):)?` + regexp.QuoteMeta(local) + `[\s/>]`)
}

// start tag matchers for every element we patch, read only after init
var startTags = map[string]*regexp.Regexp{
	"body":          compileStartTag("body"),
	"sectPr":        compileStartTag("sectPr"),
	"comments":      compileStartTag("comments"),
	"Relationships": compileStartTag("Relationships"),
	"Types":         compileStartTag("Types"),
}

func startTagRe(local string) *regexp.Regexp {
	if re, ok := startTags[local]; ok {
		return re
	}
	return compileStartTag(local)
}

// elementPrefix finds first start tag with given local name and returns its
// namespace prefix.
func elementPrefix(data []byte, local string) (string, bool) {
	m := startTagRe(local).FindSubmatch(data)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

func qname(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// insertBeforeClose inserts chunk right before the last closing tag of the
// element, expanding self-closing element when necessary.
func insertBeforeClose(data []byte, prefix, local, chunk string) ([]byte, error) {
	q := qname(prefix, local)
	if at := bytes.LastIndex(data, []byte("</"+q+">")); at >= 0 {
		return splice(data, at, chunk), nil
	}
	loc := startTagRe(local).FindIndex(data)
	if loc == nil {
		return nil, fmt.Errorf("element %s not found", q)
	}
	end, ok := selfClosingEnd(data, loc[0])
	if !ok {
		return nil, fmt.Errorf("element %s is not closed", q)
	}
	var b bytes.Buffer
	b.Grow(len(data) + len(chunk) + len(q) + 3)
	b.Write(data[:end-1])
	b.WriteString(">" + chunk + "</" + q + ">")
	b.Write(data[end+1:])
	return b.Bytes(), nil
}

// selfClosingEnd returns offset of '>' of the start tag beginning at start
// when the tag is self-closing.
func selfClosingEnd(data []byte, start int) (int, bool) {
	gt := bytes.IndexByte(data[start:], '>')
	if gt < 1 || data[start+gt-1] != '/' {
		return 0, false
	}
	return start + gt, true
}

func splice(data []byte, at int, chunk string) []byte {
	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:at]...)
	out = append(out, chunk...)
	return append(out, data[at:]...)
}

// markerPosition returns offset where comment anchors go in document part:
// before section properties which must stay the last child of body, or before
// body end tag. Self-closing body yields -1, it has to be expanded with
// insertBeforeClose.
func markerPosition(data []byte, prefix string) (int, error) {
	bodyEnd := bytes.LastIndex(data, []byte("</"+qname(prefix, "body")+">"))
	if bodyEnd < 0 {
		if loc := startTags["body"].FindIndex(data); loc != nil {
			if _, ok := selfClosingEnd(data, loc[0]); ok {
				return -1, nil
			}
		}
		return 0, errors.New("body is not closed")
	}
	head := data[:bodyEnd]

	locs := startTags["sectPr"].FindAllIndex(head, -1)
	if len(locs) == 0 {
		return bodyEnd, nil
	}
	start := locs[len(locs)-1][0]

	var end int
	if at := bytes.LastIndex(head, []byte("</"+qname(prefix, "sectPr")+">")); at > start {
		end = at + len("</"+qname(prefix, "sectPr")+">")
	} else if gt, ok := selfClosingEnd(head, start); ok {
		end = gt + 1
	} else {
		return bodyEnd, nil
	}
	if len(bytes.TrimSpace(head[end:])) != 0 {
		// last sectPr is nested somewhere, not a body child
		return bodyEnd, nil
	}
	return start, nil
}

// wordPrefix returns prefix to use for new wordprocessingml elements. When
// the part binds the namespace as default one, new elements carry their own
// declaration since unprefixed attributes would lose namespace.
func wordPrefix(found string) (prefix string, declare bool) {
	if found == "" {
		return "w", true
	}
	return found, false
}

func markerParagraph(prefix string, declare bool, ids []int64) (string, error) {
	q := func(local string) string { return qname(prefix, local) }

	doc := etree.NewDocument()
	p := doc.CreateElement(q("p"))
	if declare {
		p.CreateAttr("xmlns:"+prefix, ooxml.NamespaceW)
	}
	for _, id := range ids {
		v := strconv.FormatInt(id, 10)
		p.CreateElement(q("commentRangeStart")).CreateAttr(q("id"), v)
		p.CreateElement(q("commentRangeEnd")).CreateAttr(q("id"), v)
		r := p.CreateElement(q("r"))
		r.CreateElement(q("rPr")).CreateElement(q("rStyle")).CreateAttr(q("val"), "CommentReference")
		r.CreateElement(q("commentReference")).CreateAttr(q("id"), v)
	}
	return doc.WriteToString()
}

type commentMeta struct {
	author   string
	initials string
	date     string
}

func commentElements(prefix string, declare bool, meta commentMeta, issues []Issue, ids []int64) (string, error) {
	q := func(local string) string { return qname(prefix, local) }

	doc := etree.NewDocument()
	for i, issue := range issues {
		c := doc.CreateElement(q("comment"))
		if declare {
			c.CreateAttr("xmlns:"+prefix, ooxml.NamespaceW)
		}
		c.CreateAttr(q("id"), strconv.FormatInt(ids[i], 10))
		c.CreateAttr(q("author"), xmlSafe(meta.author))
		c.CreateAttr(q("date"), meta.date)
		if meta.initials != "" {
			c.CreateAttr(q("initials"), xmlSafe(meta.initials))
		}
		for _, line := range strings.Split(xmlSafe(issue.Message), "\n") {
			p := c.CreateElement(q("p"))
			p.CreateElement(q("pPr")).CreateElement(q("pStyle")).CreateAttr(q("val"), "CommentText")
			r := p.CreateElement(q("r"))
			r.CreateElement(q("rPr")).CreateElement(q("rStyle")).CreateAttr(q("val"), "CommentReference")
			t := r.CreateElement(q("t"))
			t.CreateAttr("xml:space", "preserve")
			t.SetText(strings.TrimRight(line, "\r"))
		}
	}
	return doc.WriteToString()
}

// xmlSafe drops characters which can not appear in XML 1.0 documents at all,
// even escaped.
func xmlSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return -1
		}
		return r
	}, s)
}

// maxCommentID returns the largest numeric id among existing comments.
func maxCommentID(data []byte) (int64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return 0, fmt.Errorf("%w: %w", ooxml.ErrMalformedXML, err)
	}
	root := doc.Root()
	if root == nil {
		return 0, fmt.Errorf("%w: comments root not found", ooxml.ErrMalformedXML)
	}
	var highest int64
	for _, c := range root.ChildElements() {
		if c.Tag != "comment" {
			continue
		}
		for _, a := range c.Attr {
			if a.Key != "id" {
				continue
			}
			if v, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
				highest = max(highest, v)
			}
		}
	}
	return highest, nil
}
