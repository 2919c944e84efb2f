// Package xmlnorm parses UPnP device descriptions and SCPD documents into
// typed records, tolerating namespace prefixes and the schema drift seen
// across vendors (missing actionList, argument types declared only on the
// referenced state variable, leading junk before the XML declaration).
package xmlnorm

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// node is a namespace-agnostic XML element tree. encoding/xml already
// separates a tag's namespace URI (Name.Space) from its local name
// (Name.Local), so building the tree keyed by Local name is equivalent to
// the "strip namespace prefixes before traversal" contract: a tag's prefix
// never survives into node.tag.
type node struct {
	tag      string
	attrs    []xml.Attr
	text     string
	children []*node
}

// find returns the first direct child with the given local tag name.
func (n *node) find(tag string) *node {
	for _, c := range n.children {
		if c.tag == tag {
			return c
		}
	}
	return nil
}

// findAll returns every direct child with the given local tag name.
func (n *node) findAll(tag string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// findRecursive searches the whole subtree (depth-first) for the first
// element with the given local tag name.
func (n *node) findRecursive(tag string) *node {
	if n.tag == tag {
		return n
	}
	for _, c := range n.children {
		if found := c.findRecursive(tag); found != nil {
			return found
		}
	}
	return nil
}

// textOf returns the trimmed text of a direct child, or "" if absent.
func (n *node) textOf(tag string) string {
	c := n.find(tag)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.text)
}

// ParseGeneric parses raw XML into a namespace-agnostic tree using the same
// fallback ladder as device and SCPD parsing, for callers (the Control
// Engine's SOAP response parser) that need tolerant XML decoding without a
// fixed schema.
func ParseGeneric(raw []byte) (*Node, error) {
	return parseWithFallbacks(raw)
}

// Node is the exported view of the internal XML element tree.
type Node = node

// Tag returns the element's local (namespace-stripped) tag name.
func (n *node) Tag() string { return n.tag }

// Text returns the element's own character data, untrimmed.
func (n *node) Text() string { return n.text }

// Children returns the element's direct child elements.
func (n *node) Children() []*node { return n.children }

// FindRecursive searches the whole subtree (depth-first) for the first
// element with the given local tag name.
func (n *node) FindRecursive(tag string) *node { return n.findRecursive(tag) }

// Find returns the first direct child with the given local tag name.
func (n *node) Find(tag string) *node { return n.find(tag) }

// TextOf returns the trimmed text of a direct child, or "" if absent.
func (n *node) TextOf(tag string) string { return n.textOf(tag) }

// parseWithFallbacks builds a node tree from raw XML bytes, trying
// progressively more lenient strategies: direct decode, then
// escape-bare-ampersand-and-retry, then extract-the-root-element-span and
// retry. Returns MalformedXml only when every strategy fails.
func parseWithFallbacks(raw []byte) (*node, error) {
	if n, err := decodeTree(raw); err == nil {
		return n, nil
	}

	escaped := escapeBareAmpersands(raw)
	if n, err := decodeTree(escaped); err == nil {
		return n, nil
	}

	if span := extractRootSpan(raw); span != nil {
		if n, err := decodeTree(span); err == nil {
			return n, nil
		}
	}

	return nil, &upnpmodel.Error{Kind: upnpmodel.KindMalformedXml, Message: "could not parse XML with any strategy"}
}

func decodeTree(raw []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false

	var stack []*node
	var root *node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{tag: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	return root, nil
}

var entityRef = regexp.MustCompile(`^[a-zA-Z0-9#]+;`)

// escapeBareAmpersands escapes '&' characters that do not begin a valid XML
// entity reference, leaving already-escaped entities (e.g. "&amp;", "&#10;")
// untouched. Go's RE2 engine has no negative lookahead, so the equivalent
// `&(?![a-zA-Z0-9#]+;)` pattern is implemented as an explicit scan instead.
func escapeBareAmpersands(raw []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '&' && !entityRef.Match(raw[i+1:]) {
			buf.WriteString("&amp;")
			continue
		}
		buf.WriteByte(raw[i])
	}
	return buf.Bytes()
}

var rootOpenTag = regexp.MustCompile(`<([a-zA-Z_][\w.-]*)[^>]*>`)

// extractRootSpan finds the first opening tag and its matching closing tag
// and returns the substring between them, discarding any leading junk.
func extractRootSpan(raw []byte) []byte {
	m := rootOpenTag.FindSubmatchIndex(raw)
	if m == nil {
		return nil
	}
	tag := string(raw[m[2]:m[3]])
	closing := []byte("</" + tag + ">")
	end := bytes.LastIndex(raw, closing)
	if end == -1 {
		return nil
	}
	return raw[m[0] : end+len(closing)]
}
