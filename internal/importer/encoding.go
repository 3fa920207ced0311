package importer

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	encodingCP1251 = "windows-1251"
	encodingUTF8   = "utf-8"
)

// envelopeMarker opens every client-bank exchange file.
const envelopeMarker = "1CClientBankExchange"

// markerSearchLines is how many non-empty lines may precede the marker.
const markerSearchLines = 5

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// invisible characters that editors and banks leave around the marker.
var lineCleaner = strings.NewReplacer(
	"\ufeff", "",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\u00a0", " ",
)

func cleanLine(s string) string {
	return strings.TrimSpace(lineCleaner.Replace(s))
}

func decodeCP1251(data []byte) string {
	out, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		// Windows-1251 maps every byte, so this is unreachable in practice.
		return string(data)
	}
	return string(out)
}

// looksUTF8 reports whether data is valid UTF-8 with at least one multi-byte
// sequence. Cyrillic Windows-1251 text is practically never valid UTF-8.
func looksUTF8(data []byte) bool {
	if bytes.HasPrefix(data, utf8BOM) {
		return true
	}
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// markerCheck is the result of checking decoded text for the envelope marker.
type markerCheck struct {
	found  bool
	line   int // 1-based line of the last inspected non-empty line
	offset int // byte offset of that line in the decoded text
}

func checkMarker(text string) markerCheck {
	var p markerCheck
	seen := 0
	offset := 0
	for i, raw := range strings.Split(text, "\n") {
		start := offset
		offset += len(raw) + 1
		line := cleanLine(raw)
		if line == "" {
			continue
		}
		seen++
		p.line = i + 1
		p.offset = start
		if strings.Contains(line, envelopeMarker) {
			p.found = true
			return p
		}
		if seen == markerSearchLines {
			break
		}
	}
	return p
}

// decodeStatement picks the encoding: Windows-1251 first, then UTF-8, then
// Windows-1251 again as the conventional default. Bytes that are plainly
// UTF-8 skip the first attempt so their Cyrillic text is not mangled.
func decodeStatement(data []byte) (text, encoding string, check markerCheck) {
	utf8Like := looksUTF8(data)

	if !utf8Like {
		text = decodeCP1251(data)
		if check = checkMarker(text); check.found {
			return text, encodingCP1251, check
		}
	}

	if utf8.Valid(data) {
		text = string(bytes.TrimPrefix(data, utf8BOM))
		if check = checkMarker(text); check.found {
			return text, encodingUTF8, check
		}
	}

	text = decodeCP1251(data)
	return text, encodingCP1251, checkMarker(text)
}
