// Package redact removes credentials from strings that leave the process,
// such as candidate URLs handed to clients and log attributes.
package redact

import (
	"log/slog"
	"net/url"
	"strings"
)

const Placeholder = "REDACTED"

type Redactor struct {
	replacer *strings.Replacer
}

// New builds a Redactor for the given secrets. Empty secrets are ignored.
func New(secrets ...string) *Redactor {
	var pairs []string
	seen := make(map[string]struct{})
	add := func(value string) {
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		pairs = append(pairs, value, Placeholder)
	}
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		add(secret)
		add(url.QueryEscape(secret))
		add(url.PathEscape(secret))
	}
	if len(pairs) == 0 {
		return &Redactor{}
	}
	return &Redactor{replacer: strings.NewReplacer(pairs...)}
}

func (r *Redactor) String(value string) string {
	if r == nil || r.replacer == nil || value == "" {
		return value
	}
	return r.replacer.Replace(value)
}

// ReplaceAttr plugs into slog.HandlerOptions so string attributes and
// error values never carry a secret.
func (r *Redactor) ReplaceAttr(_ []string, attr slog.Attr) slog.Attr {
	if r == nil || r.replacer == nil {
		return attr
	}
	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, r.String(attr.Value.String()))
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			return slog.String(attr.Key, r.String(err.Error()))
		}
	}
	return attr
}
