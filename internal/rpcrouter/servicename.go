package rpcrouter

import "strings"

// defaultServiceName is used when an app name sanitizes to nothing (empty
// string, or a name made up entirely of non-alphanumeric runes) — spec.md
// §4.6 "fallback VentionApp".
const defaultServiceName = "VentionApp"

// ServiceName derives the PascalCase service name from an app name: split
// on runs of non-alphanumeric characters, capitalize each word's leading
// rune, and concatenate — spec.md §4.6 "<ServiceName> is the PascalCase
// sanitization of the app name (strip non-alphanumerics, capitalize
// words, fallback VentionApp)".
func ServiceName(appName string) string {
	words := splitAlnum(appName)
	if len(words) == 0 {
		return defaultServiceName
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}

// ServiceFQN returns the fully qualified route segment for appName —
// spec.md §4.6 "<service_fqn> is vention.app.v1.<ServiceName>Service".
func ServiceFQN(appName string) string {
	return "vention.app.v1." + ServiceName(appName) + "Service"
}

func splitAlnum(s string) []string {
	var words []string
	var cur strings.Builder
	isAlnum := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	}
	for _, r := range s {
		if isAlnum(r) {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}
