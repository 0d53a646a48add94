package transcript

import "testing"

func TestCleanVTT(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "header timing and index lines",
			in:   "WEBVTT\nKind: captions\nLanguage: en\n\n1\n00:00:00.000 --> 00:00:02.000\nHello there\n\n2\n00:00:02.000 --> 00:00:04.000 align:start position:0%\nand welcome\n",
			want: "Hello there and welcome",
		},
		{
			name: "inline tags and entities",
			in:   "WEBVTT\n\n00:00:00.000 --> 00:00:01.000\n<c.colorE5E5E5>this</c><00:00:00.500><c> is</c> Tom &amp; Jerry\n",
			want: "this is Tom & Jerry",
		},
		{
			name: "crlf and extra whitespace",
			in:   "WEBVTT\r\n\r\n00:01.000 --> 00:02.000\r\n  spaced    out  \r\n\r\nNOTE a comment\r\n",
			want: "spaced out",
		},
		{
			name: "header only",
			in:   "WEBVTT\n\n",
			want: "",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanVTT(tt.in); got != tt.want {
				t.Errorf("CleanVTT() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPickCaptionTrack(t *testing.T) {
	tests := []struct {
		name   string
		tracks []captionTrack
		want   string
		ok     bool
	}{
		{
			name: "auto generated english preferred",
			tracks: []captionTrack{
				{BaseURL: "manual-en", LanguageCode: "en"},
				{BaseURL: "asr-en", LanguageCode: "en", Kind: "asr"},
			},
			want: "asr-en", ok: true,
		},
		{
			name: "any english fallback",
			tracks: []captionTrack{
				{BaseURL: "asr-de", LanguageCode: "de", Kind: "asr"},
				{BaseURL: "manual-en-gb", LanguageCode: "en-GB"},
			},
			want: "manual-en-gb", ok: true,
		},
		{
			name:   "no english",
			tracks: []captionTrack{{BaseURL: "fr", LanguageCode: "fr"}},
			ok:     false,
		},
		{
			name: "none",
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickCaptionTrack(tt.tracks)
			if ok != tt.ok || got.BaseURL != tt.want {
				t.Errorf("pickCaptionTrack() = %q, %v; want %q, %v", got.BaseURL, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	data := []byte(`{"a":{"b":"}{"},"c":"q\"}"} ;var next = {}`)
	got := string(extractJSON(data))
	want := `{"a":{"b":"}{"},"c":"q\"}"}`
	if got != want {
		t.Errorf("extractJSON() = %q, want %q", got, want)
	}
	if extractJSON([]byte(`{"unterminated": 1`)) != nil {
		t.Error("expected nil for unterminated object")
	}
}
