package source

import (
	"encoding/base32"
	"net/url"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

const btihPrefix = "urn:btih:"

var (
	hexHashPattern    = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	base32HashPattern = regexp.MustCompile(`^[a-zA-Z2-7]{32}$`)
)

// ParseInfoHash accepts a 40-char hex or 32-char base32 info-hash token,
// optionally prefixed with urn:btih:, and returns its lowercase hex form.
func ParseInfoHash(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if hasBTIHPrefix(value) {
		value = value[len(btihPrefix):]
	}
	var hash metainfo.Hash
	switch {
	case hexHashPattern.MatchString(value):
		if err := hash.FromHexString(value); err != nil {
			return "", false
		}
	case base32HashPattern.MatchString(value):
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(value))
		if err != nil || len(decoded) != len(hash) {
			return "", false
		}
		copy(hash[:], decoded)
	default:
		return "", false
	}
	return hash.HexString(), true
}

// BuildMagnet returns a tracker-less magnet URI unless trackers are given.
func BuildMagnet(infoHash, name string, trackers []string) string {
	hash, ok := ParseInfoHash(infoHash)
	if !ok {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("magnet:?xt=urn:btih:")
	builder.WriteString(hash)
	if strings.TrimSpace(name) != "" {
		builder.WriteString("&dn=")
		builder.WriteString(url.QueryEscape(strings.TrimSpace(name)))
	}
	for _, tracker := range trackers {
		value := strings.TrimSpace(tracker)
		if value == "" {
			continue
		}
		builder.WriteString("&tr=")
		builder.WriteString(url.QueryEscape(value))
	}
	return builder.String()
}

// MagnetInfoHash extracts the lowercase hex info hash of a magnet URI.
func MagnetInfoHash(magnet string) (string, bool) {
	parsed, err := metainfo.ParseMagnetUri(strings.TrimSpace(magnet))
	if err != nil || parsed.InfoHash == (metainfo.Hash{}) {
		return "", false
	}
	return parsed.InfoHash.HexString(), true
}

// hashQueryKeys name query parameters whose value is an info hash, so a
// bare base32 token is trusted there.
var hashQueryKeys = map[string]bool{
	"btih":      true,
	"hash":      true,
	"ih":        true,
	"infohash":  true,
	"info_hash": true,
	"xt":        true,
}

// ExtractMagnetFromIndexerURL looks for an info-hash token in the path
// segments, then the query values in the order they appear, of an index link
// and rebuilds a magnet from the first one found. Path segments and unnamed
// query values must be hex or carry a urn:btih: prefix; 32-letter slugs are
// not read as base32 hashes.
func ExtractMagnetFromIndexerURL(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	for _, segment := range strings.Split(parsed.EscapedPath(), "/") {
		if unescaped, err := url.PathUnescape(segment); err == nil {
			segment = unescaped
		}
		if hash, ok := explicitInfoHash(segment); ok {
			return BuildMagnet(hash, "", nil), true
		}
	}
	for _, pair := range strings.Split(parsed.RawQuery, "&") {
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		hash, ok := explicitInfoHash(value)
		if !ok && hashQueryKeys[strings.ToLower(key)] {
			hash, ok = ParseInfoHash(value)
		}
		if ok {
			return BuildMagnet(hash, "", nil), true
		}
	}
	return "", false
}

func explicitInfoHash(token string) (string, bool) {
	if hexHashPattern.MatchString(token) || hasBTIHPrefix(token) {
		return ParseInfoHash(token)
	}
	return "", false
}

func hasBTIHPrefix(value string) bool {
	return len(value) > len(btihPrefix) && strings.EqualFold(value[:len(btihPrefix)], btihPrefix)
}
