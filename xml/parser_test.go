/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParserOpensStream(t *testing.T) {
	r := strings.NewReader(`<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" to="example.com" version="1.0">`)
	p := NewParser(r, 0)

	el, err := p.ParseElement()
	require.NoError(t, err)
	require.Equal(t, "stream:stream", el.Name())
	require.Equal(t, "example.com", el.To())
	require.Equal(t, "1.0", el.Version())
}

func TestParserReadsStanza(t *testing.T) {
	r := strings.NewReader(`<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" version="1.0"><message to="juliet@example.com"><body>hi</body></message>`)
	p := NewParser(r, 0)

	_, err := p.ParseElement()
	require.NoError(t, err)

	el, err := p.ParseElement()
	require.NoError(t, err)
	require.Equal(t, "message", el.Name())
	require.Equal(t, "juliet@example.com", el.To())
	require.Equal(t, "hi", el.Elements().Child("body").Text())
}

func TestParserDetectsStreamClose(t *testing.T) {
	r := strings.NewReader(`<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" version="1.0"></stream:stream>`)
	p := NewParser(r, 0)

	_, err := p.ParseElement()
	require.NoError(t, err)

	_, err = p.ParseElement()
	require.Equal(t, ErrStreamClosedByPeer, err)
}

func TestParserRejectsComment(t *testing.T) {
	r := strings.NewReader(`<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" version="1.0"><!-- hi --><message/>`)
	p := NewParser(r, 0)

	_, err := p.ParseElement()
	require.NoError(t, err)

	_, err = p.ParseElement()
	require.Equal(t, ErrRestrictedXML, err)
}

func TestParserEnforcesMaxStanzaSize(t *testing.T) {
	r := strings.NewReader(`<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" version="1.0"><message><body>` + strings.Repeat("x", 200) + `</body></message>`)
	p := NewParser(r, 32)

	_, err := p.ParseElement()
	require.NoError(t, err)

	_, err = p.ParseElement()
	require.Equal(t, ErrTooLargeStanza, err)
}

func TestParserReadsAcrossPartialChunks(t *testing.T) {
	full := `<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" version="1.0"><message><body>hi</body></message>`
	pr, pw := io.Pipe()
	p := NewParser(pr, 0)

	go func() {
		for _, chunk := range splitIntoChunks(full, 7) {
			pw.Write([]byte(chunk))
		}
	}()

	_, err := p.ParseElement()
	require.NoError(t, err)

	el, err := p.ParseElement()
	require.NoError(t, err)
	require.Equal(t, "message", el.Name())
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n := size
		if n > len(s) {
			n = len(s)
		}
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
