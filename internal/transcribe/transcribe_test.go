package transcribe

import (
	"strings"
	"testing"
)

func TestParseSegments_ExtractsTimestampedLines(t *testing.T) {
	output := "[00:00:00.000 --> 00:00:02.500]  Hello there\n" +
		"[00:00:02.500 --> 00:00:05.000]  General Kenobi\n" +
		"some noise line without timestamps\n"

	segments := parseSegments(output)
	if len(segments) != 2 {
		t.Fatalf("len(segments) = %d, want 2", len(segments))
	}
	if segments[0].Text != "Hello there" || segments[0].Start != 0 || segments[0].End != 2.5 {
		t.Errorf("segments[0] = %+v, unexpected", segments[0])
	}
	if segments[1].Text != "General Kenobi" || segments[1].End != 5 {
		t.Errorf("segments[1] = %+v, unexpected", segments[1])
	}
}

func TestParseSegments_SkipsEmptyText(t *testing.T) {
	output := "[00:00:00.000 --> 00:00:01.000]  \n"
	if segs := parseSegments(output); len(segs) != 0 {
		t.Errorf("len(segments) = %d, want 0 for blank-text line", len(segs))
	}
}

func TestParseTimestamp_ConvertsToSeconds(t *testing.T) {
	cases := map[string]float64{
		"00:00:00.000": 0,
		"00:00:05.500": 5.5,
		"00:01:00.000": 60,
		"01:00:00.000": 3600,
	}
	for ts, want := range cases {
		if got := parseTimestamp(ts); got != want {
			t.Errorf("parseTimestamp(%q) = %v, want %v", ts, got, want)
		}
	}
}

func TestBuildPlainText_JoinsSegments(t *testing.T) {
	segments := []Segment{{Text: "Hello"}, {Text: "world"}}
	if got := buildPlainText(segments); got != "Hello world" {
		t.Errorf("buildPlainText() = %q, want %q", got, "Hello world")
	}
}

func TestBuildPlainText_EmptySegments(t *testing.T) {
	if got := buildPlainText(nil); got != "" {
		t.Errorf("buildPlainText(nil) = %q, want empty", got)
	}
}

func TestFormatSRT_ProducesNumberedCues(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1.5, Text: "Hi"},
		{Start: 1.5, End: 3, Text: "Bye"},
	}
	out := formatSRT(segments)
	if !strings.Contains(out, "1\n00:00:00,000 --> 00:00:01,500\nHi") {
		t.Errorf("formatSRT() missing first cue: %q", out)
	}
	if !strings.Contains(out, "2\n00:00:01,500 --> 00:00:03,000\nBye") {
		t.Errorf("formatSRT() missing second cue: %q", out)
	}
}

func TestIsWav(t *testing.T) {
	if !isWav("/tmp/audio.wav") {
		t.Error("isWav(.wav) = false, want true")
	}
	if !isWav("/tmp/AUDIO.WAV") {
		t.Error("isWav(.WAV) = false, want true (case-insensitive)")
	}
	if isWav("/tmp/audio.mp3") {
		t.Error("isWav(.mp3) = true, want false")
	}
}

func TestTranscribe_MissingBinaryReturnsError(t *testing.T) {
	c := New("/nonexistent/whisper-cli", "/nonexistent/model.bin", "ffmpeg", "en")
	_, _, err := c.Transcribe(nil, "/tmp/whatever.mp4", t.TempDir(), "srt")
	if err == nil {
		t.Fatal("expected error when whisper binary is missing")
	}
}
