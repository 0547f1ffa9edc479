package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/postpilot/postpilot-backend/pkg/enums"
)

// PlatformList is an ordered list of platform names stored as a Postgres text[].
// Entries are kept as written so the dispatcher can report unknown names.
type PlatformList []enums.Platform

func (l *PlatformList) Scan(src any) error {
	if src == nil {
		*l = PlatformList{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return l.parseFromString(v)
	case []byte:
		return l.parseFromString(string(v))
	default:
		return fmt.Errorf("PlatformList: unsupported Scan type %T", src)
	}
}

func (l PlatformList) Value() (driver.Value, error) {
	// Postgres array literal: {facebook,twitter}
	if len(l) == 0 {
		return "{}", nil
	}
	parts := make([]string, 0, len(l))
	for _, p := range l {
		name := strings.TrimSpace(string(p))
		if strings.ContainsAny(name, `{},"`) {
			return nil, fmt.Errorf("PlatformList: invalid platform name %q", name)
		}
		parts = append(parts, name)
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Strings returns the raw names.
func (l PlatformList) Strings() []string {
	out := make([]string, 0, len(l))
	for _, p := range l {
		out = append(out, string(p))
	}
	return out
}

func (l *PlatformList) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "{}" || s == "" {
		*l = PlatformList{}
		return nil
	}
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if strings.TrimSpace(s) == "" {
		*l = PlatformList{}
		return nil
	}

	raw := strings.Split(s, ",")
	out := make(PlatformList, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(strings.Trim(r, `"`))
		if r == "" {
			continue
		}
		out = append(out, enums.Platform(r))
	}
	*l = out
	return nil
}
