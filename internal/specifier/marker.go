package specifier

import (
	"bytes"
	"regexp"
	"strings"
)

// MarkerPrefix introduces a resolution marker line.
const MarkerPrefix = "/// BareSpecifier"

var markerRe = regexp.MustCompile(`^///[ ]*BareSpecifier=(.*)$`)

// Marker returns the marker line recording spec, without a newline.
func Marker(spec string) string {
	return MarkerPrefix + "=" + spec
}

// ReadMarker returns the bare specifier recorded on the first line of
// contents. Markers on any other line are ignored.
func ReadMarker(contents []byte) (string, bool) {
	m := markerRe.FindStringSubmatch(firstLine(contents))
	if m == nil {
		return "", false
	}
	spec := strings.TrimSpace(m[1])
	return spec, spec != ""
}

// Mark prepends a marker recording spec, replacing an existing first-line
// marker so a file never carries more than one.
func Mark(contents []byte, spec string) []byte {
	if markerRe.MatchString(firstLine(contents)) {
		if i := bytes.IndexByte(contents, '\n'); i >= 0 {
			contents = contents[i+1:]
		} else {
			contents = nil
		}
	}
	out := make([]byte, 0, len(contents)+len(MarkerPrefix)+len(spec)+2)
	out = append(out, Marker(spec)...)
	out = append(out, '\n')
	return append(out, contents...)
}

func firstLine(contents []byte) string {
	if i := bytes.IndexByte(contents, '\n'); i >= 0 {
		contents = contents[:i]
	}
	return strings.TrimSuffix(string(contents), "\r")
}
