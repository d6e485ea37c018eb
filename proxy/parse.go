package proxy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseList parses a plain-text proxy list, one host:port per line.
// Comment lines starting with '#' and lines without a port are skipped.
func ParseList(text string) []string {
	var result []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ":") || strings.HasPrefix(line, "#") {
			continue
		}
		if e := Normalize(line); e != "" {
			result = append(result, e)
		}
	}
	return result
}

// ParseAPIResponse parses a proxy API response into normalized endpoints.
// Providers disagree on shape, so three formats are accepted:
//
//  1. plain text, one host:port per line (kuaidaili batch format)
//  2. a single JSON object: {"proxy": "host:port"} / {"ip": ..., "port": ...}
//  3. a JSON array of strings or objects
func ParseAPIResponse(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err == nil {
		switch data := raw.(type) {
		case []any:
			var result []string
			for _, item := range data {
				var e string
				switch v := item.(type) {
				case string:
					e = Normalize(v)
				case map[string]any:
					e = extractEndpoint(v)
				}
				if e != "" {
					result = append(result, e)
				}
			}
			return result
		case map[string]any:
			if e := extractEndpoint(data); e != "" {
				return []string{e}
			}
			return nil
		case string:
			if e := Normalize(data); e != "" {
				return []string{e}
			}
			return nil
		}
	}

	// Plain-text format: one host:port per line.
	var result []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ":") {
			continue
		}
		if e := Normalize(line); e != "" {
			result = append(result, e)
		}
	}
	return result
}

// extractEndpoint pulls a proxy address out of a JSON object.
func extractEndpoint(data map[string]any) string {
	if v, ok := data["proxy"]; ok {
		return Normalize(fmt.Sprint(v))
	}
	ip, hasIP := data["ip"]
	port, hasPort := data["port"]
	if hasIP && hasPort {
		return Normalize(fmt.Sprintf("%v:%v", ip, port))
	}
	for _, key := range []string{"https", "http", "addr", "address", "server"} {
		if v, ok := data[key]; ok {
			return Normalize(fmt.Sprint(v))
		}
	}
	return ""
}

// Normalize converts a raw proxy string to scheme://host:port form,
// defaulting to http for bare host:port entries.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, scheme := range []string{"http://", "https://", "socks5://", "socks4://"} {
		if strings.HasPrefix(raw, scheme) {
			return raw
		}
	}
	return "http://" + raw
}
