/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

const (
	maxPartLength = 1023
)

// JID represents an XMPP address (Jabber ID), as defined in RFC 6120, §3.
// A JID is composed of an optional localpart, a mandatory domainpart and an
// optional resourcepart: [localpart@]domainpart[/resourcepart].
//
// JID values are immutable once constructed.
type JID struct {
	node     string
	domain   string
	resource string
}

// NewJID constructs a JID from its three parts, validating and normalizing
// each of them per §3.3 through §3.5. If isServer is true, node is ignored
// (the resulting JID addresses the bare domain, not an account on it).
func NewJID(node, domain, resource string, isServer bool) (*JID, error) {
	if isServer {
		node = ""
	}
	return newJID(node, domain, resource, true)
}

// NewJIDString parses s as "[node@]domain[/resource]" and returns the
// resulting JID. isServer strips any parsed node, mirroring NewJID.
func NewJIDString(s string, isServer bool) (*JID, error) {
	if len(s) == 0 {
		return nil, newJIDError("empty JID string")
	}
	node, domain, resource, err := splitJID(s)
	if err != nil {
		return nil, err
	}
	if isServer {
		node = ""
	}
	return newJID(node, domain, resource, true)
}

// splitJID divides s into node/domain/resource using the RFC 6120 §3.1
// matching rule: the resourcepart boundary is the FIRST '/', and the
// node/domain boundary is the LAST '@' that appears before that '/'.
func splitJID(s string) (node, domain, resource string, err error) {
	var head string
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		head = s[:idx]
		resource = s[idx+1:]
		if len(resource) == 0 {
			return "", "", "", newJIDError("resourcepart must not be empty when '/' is present")
		}
	} else {
		head = s
	}
	if idx := strings.LastIndexByte(head, '@'); idx >= 0 {
		node = head[:idx]
		domain = head[idx+1:]
		if len(node) == 0 {
			return "", "", "", newJIDError("localpart must not be empty when '@' is present")
		}
	} else {
		domain = head
	}
	return node, domain, resource, nil
}

func newJID(node, domain, resource string, normalize bool) (*JID, error) {
	if normalize {
		var err error
		if node, err = normalizeNode(node); err != nil {
			return nil, err
		}
		if domain, err = normalizeDomain(domain); err != nil {
			return nil, err
		}
		if resource, err = normalizeResource(resource); err != nil {
			return nil, err
		}
	}
	if len(domain) == 0 {
		return nil, newJIDError("domainpart must not be empty")
	}
	return &JID{node: node, domain: domain, resource: resource}, nil
}

func normalizeNode(node string) (string, error) {
	if len(node) == 0 {
		return "", nil
	}
	if len(node) > maxPartLength {
		return "", newJIDError("localpart exceeds 1023 octets")
	}
	if strings.ContainsAny(node, "\"&'/:<>@") || containsControlOrSpace(node) {
		return "", newJIDError("localpart contains forbidden characters")
	}
	return strings.ToLower(norm.NFKC.String(node)), nil
}

func normalizeDomain(domain string) (string, error) {
	if len(domain) == 0 {
		return "", newJIDError("domainpart must not be empty")
	}
	domain = strings.TrimSuffix(domain, ".")
	if len(domain) == 0 || len(domain) > maxPartLength {
		return "", newJIDError("domainpart must be between 1 and 1023 octets")
	}
	// internationalized domains are folded through IDNA before lowercasing;
	// a domain that fails ToASCII (e.g. an IPv6 literal) is kept as-is.
	if ascii, err := idna.ToASCII(domain); err == nil {
		domain = ascii
	}
	return strings.ToLower(norm.NFKC.String(domain)), nil
}

func normalizeResource(resource string) (string, error) {
	if len(resource) == 0 {
		return "", nil
	}
	if len(resource) > maxPartLength {
		return "", newJIDError("resourcepart exceeds 1023 octets")
	}
	if containsControlOrSpace(resource) {
		return "", newJIDError("resourcepart contains forbidden characters")
	}
	return norm.NFKC.String(resource), nil
}

func containsControlOrSpace(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

// Node returns the localpart, or "" if absent.
func (j *JID) Node() string { return j.node }

// Domain returns the domainpart.
func (j *JID) Domain() string { return j.domain }

// Resource returns the resourcepart, or "" if absent.
func (j *JID) Resource() string { return j.resource }

// IsServer reports whether the JID addresses a bare domain (no localpart).
func (j *JID) IsServer() bool { return len(j.node) == 0 }

// IsBare reports whether the JID has no resourcepart.
func (j *JID) IsBare() bool { return len(j.resource) == 0 }

// IsFull reports whether the JID has a resourcepart.
func (j *JID) IsFull() bool { return len(j.resource) > 0 }

// IsFullWithUser reports whether the JID has both a localpart and a
// resourcepart.
func (j *JID) IsFullWithUser() bool { return len(j.node) > 0 && len(j.resource) > 0 }

// ToBareJID returns the JID stripped of its resourcepart.
func (j *JID) ToBareJID() *JID {
	return &JID{node: j.node, domain: j.domain}
}

// ToServerJID returns the JID reduced to its domainpart only.
func (j *JID) ToServerJID() *JID {
	return &JID{domain: j.domain}
}

// MatchesBare reports whether j and other refer to the same bare JID
// (localpart + domainpart), ignoring resourcepart.
func (j *JID) MatchesBare(other *JID) bool {
	if other == nil {
		return false
	}
	return j.node == other.node && j.domain == other.domain
}

// Equal reports whether j and other are the same normalized JID, including
// resourcepart.
func (j *JID) Equal(other *JID) bool {
	if other == nil {
		return false
	}
	return j.node == other.node && j.domain == other.domain && j.resource == other.resource
}

// String serializes the JID back to "[node@]domain[/resource]" form.
func (j *JID) String() string {
	var sb strings.Builder
	if len(j.node) > 0 {
		sb.WriteString(j.node)
		sb.WriteByte('@')
	}
	sb.WriteString(j.domain)
	if len(j.resource) > 0 {
		sb.WriteByte('/')
		sb.WriteString(j.resource)
	}
	return sb.String()
}

type jidError struct{ msg string }

func newJIDError(msg string) error { return &jidError{msg: msg} }

func (e *jidError) Error() string { return "xml: invalid JID: " + e.msg }
