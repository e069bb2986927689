package main

import "net/url"

// hostnameOf extracts the host from rawURL for use as a default output
// directory name ("" if rawURL doesn't parse).
func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
