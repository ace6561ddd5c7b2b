package source

import (
	"regexp"
	"strings"

	"torrentstream/resolver/internal/domain"
)

const (
	DefaultDirectPattern  = `(?i)^https?://([a-z0-9-]+\.)*download\.real-debrid\.(com|cloud)/`
	DefaultResolvePattern = `(?i)^https?://[^/?#]+(/[^?#]*)?/resolve/`
)

// Classifier decides which resolution path a candidate URL takes.
// It is pure and safe for concurrent use.
type Classifier struct {
	direct  []*regexp.Regexp
	resolve []*regexp.Regexp
}

type Option func(*Classifier)

// WithDirectPatterns replaces the direct-download host patterns.
func WithDirectPatterns(patterns ...*regexp.Regexp) Option {
	return func(c *Classifier) {
		if len(patterns) > 0 {
			c.direct = patterns
		}
	}
}

// WithResolvePatterns replaces the index resolve-link patterns.
func WithResolvePatterns(patterns ...*regexp.Regexp) Option {
	return func(c *Classifier) {
		if len(patterns) > 0 {
			c.resolve = patterns
		}
	}
}

func NewClassifier(options ...Option) *Classifier {
	c := &Classifier{
		direct:  []*regexp.Regexp{regexp.MustCompile(DefaultDirectPattern)},
		resolve: []*regexp.Regexp{regexp.MustCompile(DefaultResolvePattern)},
	}
	for _, option := range options {
		if option != nil {
			option(c)
		}
	}
	return c
}

// CompilePatterns compiles a comma-separated list of regular expressions.
func CompilePatterns(raw string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, part := range strings.Split(raw, ",") {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (c *Classifier) Classify(ref string) domain.SourceKind {
	value := strings.TrimSpace(ref)
	switch {
	case matchAny(c.direct, value):
		return domain.SourceDirect
	case strings.HasPrefix(strings.ToLower(value), "magnet:"):
		return domain.SourceMagnet
	case matchAny(c.resolve, value):
		return domain.SourceIndexerResolveURL
	default:
		return domain.SourceHosterLink
	}
}

var defaultClassifier = NewClassifier()

// Classify uses the default patterns.
func Classify(ref string) domain.SourceKind {
	return defaultClassifier.Classify(ref)
}

func matchAny(patterns []*regexp.Regexp, value string) bool {
	for _, re := range patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
