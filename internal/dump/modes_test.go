package dump_test

import (
	"regexp"
	"testing"
)

// Offsets are zero padded to a width derived from the file size in
// random-access mode and fixed in streaming mode; strip the padding before
// comparing transcripts.
var offsetPadding = regexp.MustCompile(`(?m)^(\s*):0x0*`)

func normalizeOffsets(s string) string {
	return offsetPadding.ReplaceAllString(s, "${1}:0x")
}

// TestModeEquivalence requires both strategies to produce the same transcript
// for well-formed archives, up to offset column width.
func TestModeEquivalence(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "empty archive",
			data: eocdr(0, 0, 0, 0, nil),
		},
		{
			name: "archive comment",
			data: eocdr(0, 0, 0, 0, []byte("final words")),
		},
		{
			name: "single stored entry",
			data: buildArchive(simpleEntry{name: "hi.txt", payload: []byte("hello")}),
		},
		{
			name: "several entries with comments",
			data: buildArchive(
				simpleEntry{name: "a.txt", payload: []byte("alpha"), comment: []byte("first")},
				simpleEntry{name: "b.txt", payload: []byte("beta")},
				simpleEntry{name: "empty"},
			),
		},
		{
			name: "zip64 terminal records",
			data: buildZip64Archive("big.bin", []byte("abc")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fromArchive, err := dumpArchive(t, tt.data)
			if err != nil {
				t.Fatalf("DumpArchive() error: %v", err)
			}
			fromStream, err := dumpStream(t, tt.data)
			if err != nil {
				t.Fatalf("DumpStream() error: %v", err)
			}

			a, s := normalizeOffsets(fromArchive), normalizeOffsets(fromStream)
			if a != s {
				t.Errorf("transcripts diverge:\nrandom access:\n%s\nstreaming:\n%s", a, s)
			}
		})
	}
}
