/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	encxml "encoding/xml"
	"errors"
	"io"
	"strings"
)

const (
	streamElementName = "stream:stream"
	streamsNamespace  = "http://etherx.jabber.org/streams"
)

// Sentinel parse-level errors (C1's Error(kind) taxonomy from spec.md §4.1).
var (
	// ErrStreamClosedByPeer is returned when a matching </stream:stream> is
	// read; this is not itself a failure, merely the normal close signal.
	ErrStreamClosedByPeer = errors.New("xml: stream closed by peer")

	// ErrTooLargeStanza is returned when a single top-level stanza exceeds
	// the configured maximum (policy-violation).
	ErrTooLargeStanza = errors.New("xml: stanza exceeds maximum size")

	// ErrNotWellFormed is returned for XML syntax violations.
	ErrNotWellFormed = errors.New("xml: not well-formed")

	// ErrRestrictedXML is returned for DTDs, processing instructions (other
	// than the leading <?xml?>), comments, or external entities.
	ErrRestrictedXML = errors.New("xml: restricted XML construct")

	// ErrUnsupportedEncoding is returned when the stream declares a
	// character encoding other than UTF-8.
	ErrUnsupportedEncoding = errors.New("xml: unsupported encoding")
)

// Parser incrementally tokenizes a single XMPP stream (C1). It reads
// directly from the supplied io.Reader, so a Read() that blocks for more
// network bytes is exactly how "partial input" is handled: the caller's
// read goroutine simply waits inside ParseElement until enough bytes have
// arrived to produce a complete token.
type Parser struct {
	r             io.Reader
	d             *encxml.Decoder
	maxStanzaSize int
	streamOpened  bool
	sawXMLDecl    bool
}

// NewParser creates a Parser reading from r, rejecting any single top-level
// stanza larger than maxStanzaSize octets (0 disables the limit).
func NewParser(r io.Reader, maxStanzaSize int) *Parser {
	p := &Parser{r: r, maxStanzaSize: maxStanzaSize}
	p.d = encxml.NewDecoder(r)
	p.d.Strict = true
	return p
}

// Reset discards any in-progress decoder state, switches to reading from r
// (for example a TLS-wrapped connection after STARTTLS), and expects a fresh
// <?xml?> + <stream:stream> sequence on the next ParseElement call. Package
// c2s does not call it: its stream restart builds a new Parser instead.
func (p *Parser) Reset(r io.Reader) {
	p.r = r
	p.d = encxml.NewDecoder(r)
	p.d.Strict = true
	p.streamOpened = false
	p.sawXMLDecl = false
}

// ParseElement reads the next top-level construct: the stream-opening
// element (once, or again after Reset), a stanza tree, or returns
// ErrStreamClosedByPeer / io.EOF / one of the Err* sentinels above.
func (p *Parser) ParseElement() (XElement, error) {
	startOffset := p.d.InputOffset()
	for {
		tok, err := p.d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			if isEncodingError(err) {
				return nil, ErrUnsupportedEncoding
			}
			return nil, ErrNotWellFormed
		}
		switch t := tok.(type) {
		case encxml.ProcInst:
			if t.Target == "xml" && !p.streamOpened && !p.sawXMLDecl {
				p.sawXMLDecl = true
				startOffset = p.d.InputOffset()
				continue
			}
			return nil, ErrRestrictedXML

		case encxml.Comment:
			return nil, ErrRestrictedXML

		case encxml.Directive:
			return nil, ErrRestrictedXML

		case encxml.CharData:
			if len(strings.TrimSpace(string(t))) == 0 {
				continue
			}
			return nil, ErrNotWellFormed

		case encxml.EndElement:
			if t.Name.Local == "stream" && t.Name.Space == streamsNamespace {
				p.streamOpened = false
				return nil, ErrStreamClosedByPeer
			}
			return nil, ErrNotWellFormed

		case encxml.StartElement:
			if !p.streamOpened {
				if t.Name.Local != "stream" || t.Name.Space != streamsNamespace {
					return nil, ErrNotWellFormed
				}
				p.streamOpened = true
				return p.buildStreamOpenElement(t), nil
			}
			el, err := p.decodeSubtree(t, startOffset)
			if err != nil {
				return nil, err
			}
			return el, nil
		}
	}
}

func (p *Parser) buildStreamOpenElement(start encxml.StartElement) *Element {
	el := NewElementName(streamElementName)
	for _, a := range start.Attr {
		el.SetAttribute(attrName(a.Name), a.Value)
	}
	if el.Attributes().Get("xmlns") == "" {
		el.SetAttribute("xmlns", jabberClientNamespace)
	}
	el.SetAttribute("xmlns:stream", streamsNamespace)
	return el
}

const jabberClientNamespace = "jabber:client"

func attrName(n encxml.Name) string {
	switch {
	case n.Space == "xmlns":
		return "xmlns:" + n.Local
	case n.Space == "" || n.Local == "xmlns":
		return n.Local
	default:
		// re-derive a conventional prefix for known namespaces so
		// round-tripping keeps the wire-visible attribute name stable.
		if p, ok := knownPrefixes[n.Space]; ok {
			return p + ":" + n.Local
		}
		return n.Local
	}
}

var knownPrefixes = map[string]string{
	"http://www.w3.org/XML/1998/namespace": "xml",
}

// decodeSubtree recursively builds the Element tree rooted at start,
// enforcing maxStanzaSize against the decoder's running input offset and
// rejecting any nested restricted construct.
func (p *Parser) decodeSubtree(start encxml.StartElement, stanzaStartOffset int64) (*Element, error) {
	el := NewElementName(qualifiedName(start.Name))
	for _, a := range start.Attr {
		el.SetAttribute(attrName(a.Name), a.Value)
	}
	if ns := start.Name.Space; ns != "" && el.Attributes().Get("xmlns") == "" {
		el.SetAttribute("xmlns", ns)
	}

	for {
		if p.maxStanzaSize > 0 && p.d.InputOffset()-stanzaStartOffset > int64(p.maxStanzaSize) {
			return nil, ErrTooLargeStanza
		}
		tok, err := p.d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, ErrNotWellFormed
			}
			return nil, ErrNotWellFormed
		}
		switch t := tok.(type) {
		case encxml.StartElement:
			child, err := p.decodeSubtree(t, stanzaStartOffset)
			if err != nil {
				return nil, err
			}
			el.AppendElement(child)
		case encxml.EndElement:
			return el, nil
		case encxml.CharData:
			el.SetText(el.Text() + string(t))
		case encxml.Comment, encxml.Directive:
			return nil, ErrRestrictedXML
		case encxml.ProcInst:
			return nil, ErrRestrictedXML
		}
	}
}

func qualifiedName(n encxml.Name) string {
	if p, ok := knownPrefixes[n.Space]; ok {
		return p + ":" + n.Local
	}
	return n.Local
}

func isEncodingError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encoding") || strings.Contains(msg, "charset")
}
