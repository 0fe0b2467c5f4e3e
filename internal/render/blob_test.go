package render_test

import (
	"strings"
	"testing"

	"github.com/ossyrian/zipdump/internal/render"
)

func renderBlob(t *testing.T, data []byte, cfg render.BlobConfig) string {
	t.Helper()
	var sb strings.Builder
	r := render.New(&sb, 4)
	if err := r.Blob(data, cfg); err != nil {
		t.Fatalf("Blob() error: %v", err)
	}
	return sb.String()
}

func TestBlobCP437Rows(t *testing.T) {
	data := append([]byte("ABCDEFGHIJKLMNOP"), 0x01, 0x02, 0xff, 0x22)
	got := renderBlob(t, data, render.BlobConfig{Encoding: render.EncodingCP437})

	want := "41 42 43 44 45 46 47 48 49 4a 4b 4c 4d 4e 4f 50 ; cp437\"ABCDEFGHIJKLMNOP\"\n" +
		"01 02 ff 22" + strings.Repeat(" ", 36) + " ; cp437\"☺☻ \\\"\"\n"
	if got != want {
		t.Errorf("blob =\n%q, want\n%q", got, want)
	}
}

func TestBlobEmpty(t *testing.T) {
	got := renderBlob(t, nil, render.BlobConfig{Encoding: render.EncodingCP437})
	if got != "" {
		t.Errorf("empty blob rendered %q", got)
	}
}

func TestBlobCompact(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}
	got := renderBlob(t, data, render.BlobConfig{RowLength: 4, Compact: true})

	want := "deadbeef\n0102\n"
	if got != want {
		t.Errorf("compact blob = %q, want %q", got, want)
	}
}

func TestBlobUTF8(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		cfg  render.BlobConfig
		want string
	}{
		{
			name: "short row padding",
			data: []byte("abé✓"),
			cfg:  render.BlobConfig{RowLength: 8, Encoding: render.EncodingUTF8},
			want: "61 62 c3 a9 e2 9c 93    ; utf8\"abé✓\"\n",
		},
		{
			name: "sequence carried across rows",
			data: []byte("aééb"),
			cfg:  render.BlobConfig{RowLength: 4, Encoding: render.EncodingUTF8},
			want: "61 c3 a9 c3 ; utf8\"aé\"\n" +
				"a9 62       ; utf8\"éb\"\n",
		},
		{
			name: "invalid leading byte",
			data: []byte{0xff, 0x41},
			cfg:  render.BlobConfig{RowLength: 4, Encoding: render.EncodingUTF8},
			want: "ff 41       ; utf8\"�A\"\n",
		},
		{
			name: "stray continuation byte",
			data: []byte{0x80, 0x41},
			cfg:  render.BlobConfig{RowLength: 4, Encoding: render.EncodingUTF8},
			want: "80 41       ; utf8\"�A\"\n",
		},
		{
			name: "sequence incomplete at end of blob",
			data: []byte{0x61, 0xc3},
			cfg:  render.BlobConfig{RowLength: 4, Encoding: render.EncodingUTF8},
			want: "61 c3       ; utf8\"a�\"\n",
		},
		{
			name: "aborted sequence reprocesses next byte",
			data: []byte{0xc3, 0x61},
			cfg:  render.BlobConfig{RowLength: 4, Encoding: render.EncodingUTF8},
			want: "c3 61       ; utf8\"�a\"\n",
		},
		{
			name: "overlong encoding rejected",
			data: []byte{0xe0, 0x80, 0x80},
			cfg:  render.BlobConfig{RowLength: 4, Encoding: render.EncodingUTF8},
			want: "e0 80 80    ; utf8\"�\"\n",
		},
		{
			name: "escapes",
			data: append([]byte("\n\t\r\"\\"), 0x00, 0x7f, 0xc2, 0x85),
			cfg:  render.BlobConfig{RowLength: 16, Encoding: render.EncodingUTF8},
			want: "0a 09 0d 22 5c 00 7f c2 85" + strings.Repeat(" ", 21) +
				" ; utf8\"\\n\\t\\r\\\"\\\\\\x00\\x7f\\u0085\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderBlob(t, tt.data, tt.cfg)
			if got != tt.want {
				t.Errorf("blob =\n%q, want\n%q", got, tt.want)
			}
		})
	}
}

// TestBlobWriteChunkInvariance feeds the same blob through every possible
// two-way split, and byte by byte, and requires output identical to a single
// whole-blob write. This is the property the streaming walker depends on:
// rows and UTF-8 sequences must not care where chunk boundaries fall.
func TestBlobWriteChunkInvariance(t *testing.T) {
	data := append([]byte("plain é ✓ 𝄞 text"), 0xff, 0x80, 0xc3, 0x29, 0xe2, 0x9c)
	cfgs := map[string]render.BlobConfig{
		"utf8":    {RowLength: 8, Encoding: render.EncodingUTF8},
		"cp437":   {RowLength: 8, Encoding: render.EncodingCP437},
		"compact": {RowLength: 8, Compact: true},
	}

	for name, cfg := range cfgs {
		t.Run(name, func(t *testing.T) {
			want := renderBlob(t, data, cfg)

			for i := 0; i <= len(data); i++ {
				var sb strings.Builder
				bw := render.New(&sb, 4).NewBlobWriter(cfg)
				if _, err := bw.Write(data[:i]); err != nil {
					t.Fatalf("Write() error: %v", err)
				}
				if _, err := bw.Write(data[i:]); err != nil {
					t.Fatalf("Write() error: %v", err)
				}
				if err := bw.Close(); err != nil {
					t.Fatalf("Close() error: %v", err)
				}
				if sb.String() != want {
					t.Fatalf("split at %d diverged:\n%q\nwant\n%q", i, sb.String(), want)
				}
			}

			var sb strings.Builder
			bw := render.New(&sb, 4).NewBlobWriter(cfg)
			for _, b := range data {
				if _, err := bw.Write([]byte{b}); err != nil {
					t.Fatalf("Write() error: %v", err)
				}
			}
			if err := bw.Close(); err != nil {
				t.Fatalf("Close() error: %v", err)
			}
			if sb.String() != want {
				t.Fatalf("byte-by-byte feed diverged:\n%q\nwant\n%q", sb.String(), want)
			}
		})
	}
}

func TestBlobWriteAfterClose(t *testing.T) {
	var sb strings.Builder
	bw := render.New(&sb, 4).NewBlobWriter(render.CompactConfig)
	if err := bw.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := bw.Write([]byte{1}); err == nil {
		t.Fatal("Write() succeeded after Close()")
	}
}
