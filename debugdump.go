package rsihost

import (
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// malformedDatagramSummary holds the fields worth dumping when a datagram
// fails IPOC extraction and an OnMalformedPacket callback is installed; the
// Verbose setting plays no part. Rendered lazily (only on the failure path)
// so the happy path never pays for it.
type malformedDatagramSummary struct {
	Length     int
	HasRIst    bool
	HasAIPos   bool
	HasIPOC    bool
	FirstBytes string
}

func summarizeMalformed(datagram string) malformedDatagramSummary {
	const preview = 64
	firstBytes := datagram
	if len(firstBytes) > preview {
		firstBytes = firstBytes[:preview]
	}
	return malformedDatagramSummary{
		Length:     len(datagram),
		HasRIst:    strings.Contains(datagram, tagRIst),
		HasAIPos:   strings.Contains(datagram, tagAIPos),
		HasIPOC:    strings.Contains(datagram, tagIPOCStart),
		FirstBytes: firstBytes,
	}
}

// dumpMalformed renders a field-by-field summary of a datagram that failed
// IPOC extraction, for the problem log.
func dumpMalformed(datagram string) string {
	return spew.Sdump(summarizeMalformed(datagram))
}
