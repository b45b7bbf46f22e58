package bananabit

import (
	"strings"
)

const dynamicSegment = "*"

// NormalizePath trims p, forces a leading slash, collapses repeated slashes
// and drops the trailing slash. The root path stays "/".
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}

	parts := splitSegments(p)
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}

// PatternKey returns the normalized pattern with every dynamic segment
// replaced by a single placeholder, e.g. /posts/:slug and /posts/{id}
// both yield /posts/*.
func PatternKey(p string) string {
	segs := patternSegments(p)
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}

// PatternsCollide reports whether two patterns can match the same request
// path. Patterns collide when they have the same number of segments and each
// position is equal or dynamic on at least one side. A trailing * matches the
// rest of the path, so it collides with any pattern sharing its prefix.
func PatternsCollide(a, b string) bool {
	sa, sb := patternSegments(a), patternSegments(b)
	wa, wb := hasWildcardTail(a), hasWildcardTail(b)

	switch {
	case wa && wb:
		return segmentsCompatible(sa, sb, min(len(sa), len(sb))-1)
	case wa:
		return len(sb) >= len(sa)-1 && segmentsCompatible(sa, sb, len(sa)-1)
	case wb:
		return len(sa) >= len(sb)-1 && segmentsCompatible(sa, sb, len(sb)-1)
	}
	return len(sa) == len(sb) && segmentsCompatible(sa, sb, len(sa))
}

func segmentsCompatible(sa, sb []string, n int) bool {
	for i := 0; i < n; i++ {
		if sa[i] == dynamicSegment || sb[i] == dynamicSegment {
			continue
		}
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func hasWildcardTail(p string) bool {
	parts := splitSegments(p)
	return len(parts) > 0 && parts[len(parts)-1] == "*"
}

func isDynamic(seg string) bool {
	switch {
	case seg == "*":
		return true
	case strings.HasPrefix(seg, ":") && len(seg) > 1:
		return true
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2:
		return true
	}
	return false
}

func paramName(seg string) string {
	switch {
	case seg == "*":
		return "*"
	case strings.HasPrefix(seg, ":"):
		return strings.TrimSuffix(seg[1:], "?")
	case strings.HasPrefix(seg, "{"):
		return seg[1 : len(seg)-1]
	}
	return ""
}

func patternSegments(p string) []string {
	parts := splitSegments(p)
	for i, seg := range parts {
		if isDynamic(seg) {
			parts[i] = dynamicSegment
		}
	}
	return parts
}

func splitSegments(p string) []string {
	raw := strings.Split(strings.TrimSpace(p), "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// fiberPath converts {name} segments to the :name form fiber understands.
func fiberPath(p string) string {
	parts := splitSegments(p)
	if len(parts) == 0 {
		return "/"
	}
	for i, seg := range parts {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2 {
			parts[i] = ":" + seg[1:len(seg)-1]
		}
	}
	return "/" + strings.Join(parts, "/")
}

// matchSegments matches a concrete request path against a pattern and
// returns the captured parameters. A trailing * captures the remainder,
// which may be empty.
func matchSegments(pattern, path string) (map[string]string, bool) {
	ps, rs := splitSegments(pattern), splitSegments(path)
	if n := len(ps); n > 0 && ps[n-1] == "*" && len(rs) >= n-1 {
		rs = append(rs[:n-1:n-1], strings.Join(rs[n-1:], "/"))
	}
	if len(ps) != len(rs) {
		return nil, false
	}

	params := map[string]string{}
	for i, seg := range ps {
		if isDynamic(seg) {
			params[paramName(seg)] = rs[i]
			continue
		}
		if seg != rs[i] {
			return nil, false
		}
	}
	return params, true
}
