/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"

	"github.com/ortuman/xmppd/xml"
	"golang.org/x/crypto/pbkdf2"
)

// scramStep tracks which flight of the RFC 5802 exchange is expected next.
type scramStep int

const (
	scramExpectClientFirst scramStep = iota
	scramExpectClientFinal
	scramDone
)

// scramAuthenticator implements RFC 5802 SCRAM-SHA-1 / SCRAM-SHA-256. The
// four-flight exchange (client-first / server-first / client-final /
// server-final) plays out across two ProcessElement calls: the first
// consumes the initiating <auth/> (client-first), the second consumes the
// following <response/> (client-final).
type scramAuthenticator struct {
	provider Provider
	domain   string
	mech     string
	newHash  func() hash.Hash

	step scramStep

	clientFirstBare string
	serverFirst     string
	combinedNonce   string
	storedKey       []byte
	serverKey       []byte
	username        string

	authenticated bool
}

// NewScramSHA1 returns a fresh SCRAM-SHA-1 Authenticator.
func NewScramSHA1(provider Provider, domain string) Authenticator {
	return &scramAuthenticator{provider: provider, domain: domain, mech: "SCRAM-SHA-1", newHash: sha1.New}
}

// NewScramSHA256 returns a fresh SCRAM-SHA-256 Authenticator.
func NewScramSHA256(provider Provider, domain string) Authenticator {
	return &scramAuthenticator{provider: provider, domain: domain, mech: "SCRAM-SHA-256", newHash: sha256.New}
}

func (a *scramAuthenticator) Mechanism() string { return a.mech }

func (a *scramAuthenticator) ProcessElement(elem xml.XElement, send func(xml.XElement)) (Step, error) {
	payload, err := decodeSASLPayload(elem.Text())
	if err != nil {
		return Done, ErrMalformedRequest
	}
	switch a.step {
	case scramExpectClientFirst:
		return a.handleClientFirst(payload, send)
	case scramExpectClientFinal:
		return a.handleClientFinal(payload, send)
	default:
		return Done, ErrMalformedRequest
	}
}

func decodeSASLPayload(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "=" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *scramAuthenticator) handleClientFirst(msg string, send func(xml.XElement)) (Step, error) {
	// GS2 header: "n,," (no channel binding, no authzid). Any other header
	// ("y,,", "p=...", or one carrying an authzid) is rejected as malformed.
	if !strings.HasPrefix(msg, "n,,") {
		return Done, ErrMalformedRequest
	}
	bare := msg[3:]
	fields := parseSCRAMFields(bare)
	username := fields["n"]
	cnonce := fields["r"]
	if len(username) == 0 || len(cnonce) == 0 {
		return Done, ErrMalformedRequest
	}

	creds, ok, err := a.provider.ScramCredentials(username, a.mech)
	if err != nil {
		return Done, ErrTemporaryAuthFailure
	}
	if !ok {
		return Done, ErrNotAuthorized
	}

	serverNonce, err := generateNonce()
	if err != nil {
		return Done, ErrTemporaryAuthFailure
	}
	combined := cnonce + serverNonce
	saltB64 := base64.StdEncoding.EncodeToString(creds.Salt)
	serverFirst := "r=" + combined + ",s=" + saltB64 + ",i=" + strconv.Itoa(creds.Iterations)

	a.clientFirstBare = bare
	a.serverFirst = serverFirst
	a.combinedNonce = combined
	a.storedKey = creds.StoredKey
	a.serverKey = creds.ServerKey
	a.username = username
	a.step = scramExpectClientFinal

	challenge := xml.NewElementNamespace("challenge", saslNamespace)
	challenge.SetText(base64.StdEncoding.EncodeToString([]byte(serverFirst)))
	send(challenge)
	return Continue, nil
}

func (a *scramAuthenticator) handleClientFinal(msg string, send func(xml.XElement)) (Step, error) {
	proofIdx := strings.LastIndex(msg, ",p=")
	if proofIdx < 0 {
		return Done, ErrMalformedRequest
	}
	withoutProof := msg[:proofIdx]
	proofB64 := msg[proofIdx+len(",p="):]

	fields := parseSCRAMFields(withoutProof)
	if fields["r"] != a.combinedNonce {
		// the client-final nonce MUST begin with (here, equal) the exact
		// nonce the server issued.
		return Done, ErrNotAuthorized
	}
	clientProof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return Done, ErrMalformedRequest
	}

	authMessage := a.clientFirstBare + "," + a.serverFirst + "," + withoutProof

	clientSignature := hmacSum(a.newHash, a.storedKey, authMessage)
	if len(clientProof) != len(clientSignature) {
		return Done, ErrNotAuthorized
	}
	clientKey := xorBytes(clientProof, clientSignature)
	computedStoredKey := hashSum(a.newHash, clientKey)
	if !hmac.Equal(computedStoredKey, a.storedKey) {
		return Done, ErrNotAuthorized
	}

	serverSignature := hmacSum(a.newHash, a.serverKey, authMessage)
	successPayload := "v=" + base64.StdEncoding.EncodeToString(serverSignature)

	a.authenticated = true
	a.step = scramDone

	success := xml.NewElementNamespace("success", saslNamespace)
	success.SetText(base64.StdEncoding.EncodeToString([]byte(successPayload)))
	send(success)
	return Done, nil
}

func (a *scramAuthenticator) Authenticated() bool { return a.authenticated }
func (a *scramAuthenticator) Username() string    { return a.username }

func (a *scramAuthenticator) Reset() {
	*a = scramAuthenticator{provider: a.provider, domain: a.domain, mech: a.mech, newHash: a.newHash}
}

// ScramSaltedPassword derives SaltedPassword = PBKDF2(password, salt, iter,
// hash_len) exactly per RFC 5802, for use by a Provider when provisioning a
// new user's ScramCredentials.
func ScramSaltedPassword(newHash func() hash.Hash, password string, salt []byte, iterations int) []byte {
	h := newHash()
	return pbkdf2.Key([]byte(password), salt, iterations, h.Size(), newHash)
}

// ScramStoredKey derives StoredKey = H(HMAC(SaltedPassword, "Client Key")).
func ScramStoredKey(newHash func() hash.Hash, saltedPassword []byte) []byte {
	clientKey := hmacSum(newHash, saltedPassword, "Client Key")
	return hashSum(newHash, clientKey)
}

// ScramServerKey derives ServerKey = HMAC(SaltedPassword, "Server Key").
func ScramServerKey(newHash func() hash.Hash, saltedPassword []byte) []byte {
	return hmacSum(newHash, saltedPassword, "Server Key")
}

func hmacSum(newHash func() hash.Hash, key []byte, data string) []byte {
	mac := hmac.New(newHash, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hashSum(newHash func() hash.Hash, data []byte) []byte {
	h := newHash()
	h.Write(data)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// generateNonce returns a cryptographically strong, >=128-bit nonce encoded
// as hex (so it never collides with SCRAM's comma/equals field separators).
func generateNonce() (string, error) {
	buf := make([]byte, 18) // 144 bits
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// parseSCRAMFields splits a comma-separated "k=v,k=v,..." message into a
// map. Unlike a general attribute-value pair parser, it does not unescape
// the ",=2C" / "==3D" SCRAM escaping for '=' and ',' inside values, since
// neither appears in the username/nonce/salt/iteration fields this server
// round-trips.
func parseSCRAMFields(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		if idx := strings.IndexByte(part, '='); idx > 0 {
			out[part[:idx]] = part[idx+1:]
		}
	}
	return out
}
