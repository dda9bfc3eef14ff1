package rsihost

import (
	"fmt"
	"strconv"
	"strings"
)

// Codec is a stateless parser of inbound RSI XML fragments and formatter of
// outbound response datagrams. Parsing is deliberately substring-based, not
// DOM-based: the per-datagram budget is hundreds of microseconds and the
// datagram shape is fixed and bounded. Replacing this with a conformant XML
// parser without measuring the real-time impact would defeat the point.
const (
	tagIPOCStart = "<IPOC>"
	tagIPOCEnd   = "</IPOC>"
	tagRIst      = "<RIst"
	tagAIPos     = "<AIPos"
)

// responseTemplate is the byte-exact outbound layout. The IPOC is echoed as
// the exact substring extracted from the inbound packet, preserving any
// leading zeros, so %s (not a re-encoded integer) is used here.
const responseTemplate = "<Sen Type=\"ImFree\">\n" +
	"<EStr>RSI Monitor</EStr>\n" +
	"<RKorr X=\"%.4f\" Y=\"%.4f\" Z=\"%.4f\" A=\"%.4f\" B=\"%.4f\" C=\"%.4f\" />\n" +
	"<IPOC>%s</IPOC>\n" +
	"</Sen>"

// extractIPOC locates the first <IPOC>...</IPOC> fragment and returns the
// exact substring between the tags (preserving leading zeros) along with its
// decoded value. ok is false if either delimiter is missing or the substring
// does not decode as an unsigned decimal integer.
func extractIPOC(datagram string) (raw string, value uint64, ok bool) {
	start := strings.Index(datagram, tagIPOCStart)
	if start < 0 {
		return "", 0, false
	}
	start += len(tagIPOCStart)
	end := strings.Index(datagram[start:], tagIPOCEnd)
	if end < 0 {
		return "", 0, false
	}
	raw = datagram[start : start+end]
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return raw, value, true
}

// parseAttr locates the first name="..." within xml and decodes the floating-point value starting immediately after the opening
// quote. It returns 0.0 if the attribute is absent, matching the reference
// behavior that missing attributes default to zero rather than erroring.
func parseAttr(xml string, name string) float64 {
	needle := name + "=\""
	idx := strings.Index(xml, needle)
	if idx < 0 {
		return 0.0
	}
	start := idx + len(needle)
	end := start
	for end < len(xml) && xml[end] != '"' {
		end++
	}
	v, err := strconv.ParseFloat(xml[start:end], 64)
	if err != nil {
		return 0.0
	}
	return v
}

// cartesianFields holds the six parsed RIst attributes before they are
// imprinted with a timestamp and IPOC and stored.
type cartesianFields struct {
	X, Y, Z, A, B, C float64
}

// parseCartesian locates the first <RIst ...> fragment and decodes its six
// named attributes. ok is false only if the <RIst tag itself is absent;
// individual missing attributes default to 0.0.
func parseCartesian(datagram string) (fields cartesianFields, ok bool) {
	idx := strings.Index(datagram, tagRIst)
	if idx < 0 {
		return cartesianFields{}, false
	}
	frag := datagram[idx:]
	fields = cartesianFields{
		X: parseAttr(frag, "X"),
		Y: parseAttr(frag, "Y"),
		Z: parseAttr(frag, "Z"),
		A: parseAttr(frag, "A"),
		B: parseAttr(frag, "B"),
		C: parseAttr(frag, "C"),
	}
	return fields, true
}

// jointFields holds the six parsed AIPos attributes (A1..A6).
type jointFields struct {
	Axis [6]float64
}

// parseJoints locates the first <AIPos ...> fragment and decodes its six
// named attributes, same rules as parseCartesian.
func parseJoints(datagram string) (fields jointFields, ok bool) {
	idx := strings.Index(datagram, tagAIPos)
	if idx < 0 {
		return jointFields{}, false
	}
	frag := datagram[idx:]
	for i, name := range [6]string{"A1", "A2", "A3", "A4", "A5", "A6"} {
		fields.Axis[i] = parseAttr(frag, name)
	}
	return fields, true
}

// formatResponse renders the outbound datagram. ipoc must be the exact
// substring extracted from the inbound packet (see extractIPOC), not a
// re-encoded integer, so leading zeros survive the round trip.
func formatResponse(correction CartesianCorrection, ipoc string) string {
	return fmt.Sprintf(responseTemplate,
		correction.X, correction.Y, correction.Z,
		correction.A, correction.B, correction.C,
		ipoc)
}
