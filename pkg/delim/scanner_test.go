package delim

import (
	"reflect"
	"strings"
	"testing"
)

func feedAll(s *Scanner, chunks []string) []string {
	var got []string
	for _, c := range chunks {
		got = append(got, s.Feed(c)...)
	}
	return got
}

func TestFeedExtractsSpans(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "single span in one chunk",
			chunks: []string{`[FC]{"front":"a"}[/FC]`},
			want:   []string{`{"front":"a"}`},
		},
		{
			name:   "open marker split across chunks",
			chunks: []string{"[F", `C]{"x":1}[/FC]`},
			want:   []string{`{"x":1}`},
		},
		{
			name:   "close marker split across chunks",
			chunks: []string{`[FC]{"x":1}[/F`, `C]`},
			want:   []string{`{"x":1}`},
		},
		{
			name:   "multiple spans in a single chunk",
			chunks: []string{`[FC]one[/FC]junk[FC]two[/FC]`},
			want:   []string{"one", "two"},
		},
		{
			name:   "close before any open is noise",
			chunks: []string{`[/FC]garbage[FC]kept[/FC]`},
			want:   []string{"kept"},
		},
		{
			name:   "payload split over many chunks",
			chunks: []string{"[FC]", "pa", "yl", "oad", "[/FC]"},
			want:   []string{"payload"},
		},
		{
			name:   "leading prose before first span",
			chunks: []string{"Sure! Here are your cards:\n", "[FC]a[/FC]"},
			want:   []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feedAll(NewScanner("[FC]", "[/FC]"), tt.chunks)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Feed sequence = %v, want %v", got, tt.want)
			}
		})
	}
}

// The same logical stream must yield the same payloads regardless of how it
// is sliced into chunks.
func TestFeedRechunkingInvariance(t *testing.T) {
	full := `intro [QZ]{"q":"one"}[/QZ] mid [QZ]{"q":"two"}[/QZ][QZ]{"q":"three"}[/QZ] tail`
	want := []string{`{"q":"one"}`, `{"q":"two"}`, `{"q":"three"}`}

	for size := 1; size <= len(full); size++ {
		var chunks []string
		for i := 0; i < len(full); i += size {
			end := i + size
			if end > len(full) {
				end = len(full)
			}
			chunks = append(chunks, full[i:end])
		}

		got := feedAll(NewScanner("[QZ]", "[/QZ]"), chunks)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("chunk size %d: got %v, want %v", size, got, want)
		}
	}
}

func TestFeedMalformedSpanDoesNotCorruptFollowers(t *testing.T) {
	s := NewScanner("[FC]", "[/FC]")
	got := feedAll(s, []string{`[FC]{not json[/FC][FC]{"ok":true}[/FC]`})

	// Scanner is agnostic to payload syntax; both spans surface and the
	// caller decides what to skip.
	want := []string{`{not json`, `{"ok":true}`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFeedBoundedBufferOnNoise(t *testing.T) {
	s := NewScanner("[FC]", "[/FC]")
	for i := 0; i < 1000; i++ {
		s.Feed(strings.Repeat("x", 100))
	}
	if len(s.buf) >= len("[FC]") {
		t.Errorf("buffer not trimmed on unmatched input, len=%d", len(s.buf))
	}

	// A span arriving after heavy noise is still recognized.
	got := s.Feed("[FC]late[/FC]")
	if !reflect.DeepEqual(got, []string{"late"}) {
		t.Errorf("got %v after noise, want [late]", got)
	}
}

func TestReset(t *testing.T) {
	s := NewScanner("[FC]", "[/FC]")
	s.Feed("[FC]partial")
	s.Reset()
	got := s.Feed("leftover[/FC][FC]fresh[/FC]")
	if !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Errorf("got %v after reset, want [fresh]", got)
	}
}
