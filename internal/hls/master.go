// SPDX-License-Identifier: MIT

// Package hls renders and parses HLS master playlists. Per-rendition media
// playlists and segments are produced by ffmpeg; only the master manifest
// that ties the quality ladder together is generated here.
package hls

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Variant is one quality rendition referenced by a master playlist.
type Variant struct {
	Label     string // e.g. "720p"
	Width     int
	Height    int
	Bandwidth int    // peak bits per second
	URI       string // relative sub-playlist path, e.g. "720p/playlist.m3u8"
}

// WriteMaster writes a version-3 master playlist listing the given variants
// in ladder order.
func WriteMaster(w io.Writer, variants []Variant) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n"); err != nil {
		return err
	}
	for _, v := range variants {
		if v.URI == "" {
			return fmt.Errorf("variant %q has no URI", v.Label)
		}
		if _, err := fmt.Fprintf(bw, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n%s\n",
			v.Bandwidth, v.Width, v.Height, v.URI); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseMaster extracts the variant list from a master playlist. It tolerates
// unknown tags and blank lines but rejects a missing #EXTM3U header and
// stream-inf entries without a following URI line.
func ParseMaster(playlist string) ([]Variant, error) {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	var (
		variants []Variant
		pending  *Variant
		sawMagic bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "#EXTM3U" {
			sawMagic = true
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			v, err := parseStreamInf(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			if err != nil {
				return nil, err
			}
			pending = &v
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		// Bare line is a URI; it belongs to the preceding stream-inf tag.
		if pending == nil {
			return nil, fmt.Errorf("unexpected URI without stream-inf: %s", line)
		}
		pending.URI = line
		pending.Label = labelFromURI(line)
		variants = append(variants, *pending)
		pending = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawMagic {
		return nil, fmt.Errorf("not an HLS playlist: missing #EXTM3U")
	}
	if pending != nil {
		return nil, fmt.Errorf("stream-inf without URI")
	}
	return variants, nil
}

func parseStreamInf(attrs string) (Variant, error) {
	var v Variant
	for _, attr := range splitAttrs(attrs) {
		key, val, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		switch key {
		case "BANDWIDTH":
			bw, err := strconv.Atoi(val)
			if err != nil {
				return v, fmt.Errorf("invalid BANDWIDTH %q: %w", val, err)
			}
			v.Bandwidth = bw
		case "RESOLUTION":
			wStr, hStr, ok := strings.Cut(val, "x")
			if !ok {
				return v, fmt.Errorf("invalid RESOLUTION %q", val)
			}
			w, err := strconv.Atoi(wStr)
			if err != nil {
				return v, fmt.Errorf("invalid RESOLUTION %q: %w", val, err)
			}
			h, err := strconv.Atoi(hStr)
			if err != nil {
				return v, fmt.Errorf("invalid RESOLUTION %q: %w", val, err)
			}
			v.Width, v.Height = w, h
		}
	}
	return v, nil
}

// splitAttrs splits an attribute list on commas outside quoted strings.
func splitAttrs(s string) []string {
	var (
		out      []string
		start    int
		inQuotes bool
	)
	for i, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func labelFromURI(uri string) string {
	if i := strings.IndexByte(uri, '/'); i > 0 {
		return uri[:i]
	}
	return uri
}
