// Package audio identifies the container format of uploaded recordings.
//
// Browsers encode MediaRecorder output differently (webm in Chromium, mp4 in
// Safari, ogg in older Firefox builds), so the server sniffs the leading
// magic bytes instead of trusting the client. Transcription backends use the
// detected MIME type to pick the right decoder.
package audio

import "bytes"

// magic pairs a leading byte signature with the MIME type it identifies.
type magic struct {
	offset int
	sig    []byte
	mime   string
}

var magics = []magic{
	{0, []byte{0x1A, 0x45, 0xDF, 0xA3}, "audio/webm"}, // EBML, also matroska
	{0, []byte("OggS"), "audio/ogg"},
	{0, []byte("fLaC"), "audio/flac"},
	{0, []byte("ID3"), "audio/mpeg"},
	{4, []byte("ftyp"), "audio/mp4"}, // mp4 and m4a
}

// DetectMIME returns the MIME type matching the leading bytes of data, or ""
// when the container is not recognised.
func DetectMIME(data []byte) string {
	for _, m := range magics {
		end := m.offset + len(m.sig)
		if len(data) >= end && bytes.Equal(data[m.offset:end], m.sig) {
			return m.mime
		}
	}
	if isWAV(data) {
		return "audio/wav"
	}
	if isMP3Frame(data) {
		return "audio/mpeg"
	}
	return ""
}

// isWAV reports whether data starts with a RIFF chunk holding WAVE content.
func isWAV(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

// isMP3Frame reports whether data starts with a bare MPEG audio frame sync
// (11 set bits), the shape of an mp3 stream without an ID3 tag.
func isMP3Frame(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
