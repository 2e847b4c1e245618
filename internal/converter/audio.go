// Package converter wraps ffmpeg as a subprocess for the two media output
// formats the job pipeline produces: mp3 audio and mp4 video. Transcript
// formats (srt/txt) do not pass through here; see internal/transcribe.
package converter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// AudioFormat represents supported output audio formats. mp3 is the only
// format the job pipeline ever requests; the type stays distinct from
// constants.Format because a future encoder change is a converter-internal
// concern, not a job-store concern.
type AudioFormat string

const (
	AudioFormatMP3 AudioFormat = "mp3"
)

// AudioQuality represents audio bitrate presets
type AudioQuality string

const (
	AudioQualityLow    AudioQuality = "low"    // 128kbps
	AudioQualityMedium AudioQuality = "medium" // 192kbps
	AudioQualityHigh   AudioQuality = "high"   // 256kbps
	AudioQualityBest   AudioQuality = "best"   // 320kbps
)

// AudioExtractOptions configures audio extraction from video
type AudioExtractOptions struct {
	InputPath     string
	OutputDir     string       // If empty, uses same directory as input
	Format        AudioFormat  // Target audio format
	Quality       AudioQuality // Bitrate quality
	CustomBitrate int          // Custom bitrate in kbps, overrides Quality if > 0
	FFmpegPath    string
	CustomName    string // Custom output filename (without extension)
}

// AudioExtractResult contains the result of audio extraction
type AudioExtractResult struct {
	OutputPath string
	InputSize  int64
	OutputSize int64
	Duration   float64 // Duration in seconds (if available)
}

// ExtractAudio extracts audio from a video file and converts to specified
// format. ctx bounds the ffmpeg subprocess; callers pass the Processing
// phase's timeout context so a hung encode gets killed rather than running
// forever.
func ExtractAudio(ctx context.Context, opts AudioExtractOptions) (*AudioExtractResult, error) {
	if opts.FFmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg path is required")
	}

	if _, err := os.Stat(opts.InputPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file does not exist: %s", opts.InputPath)
	}

	// Get input file info
	inputInfo, err := os.Stat(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}

	// Build output path
	inputExt := filepath.Ext(opts.InputPath)
	baseName := strings.TrimSuffix(filepath.Base(opts.InputPath), inputExt)
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(opts.InputPath)
	}

	var outputPath string
	if opts.CustomName != "" {
		outputPath = safeOutputPath(outputDir, opts.CustomName, "", string(opts.Format))
	} else {
		outputPath = filepath.Join(outputDir, baseName+"."+string(opts.Format))
	}

	// Build FFmpeg arguments
	args := []string{"-i", opts.InputPath, "-y", "-vn"} // -vn = no video

	// Get bitrate
	bitrate := getBitrateValue(opts.Quality)
	if opts.CustomBitrate > 0 {
		bitrate = opts.CustomBitrate
	}

	// Audio codec based on format
	switch opts.Format {
	case AudioFormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-b:a", fmt.Sprintf("%dk", bitrate))
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", opts.Format)
	}

	args = append(args, outputPath)

	// Execute FFmpeg
	cmd := exec.CommandContext(ctx, opts.FFmpegPath, args...)
	setSysProcAttr(cmd)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %v | output: %s", err, string(output))
	}

	// Get output file size
	outputInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}

	return &AudioExtractResult{
		OutputPath: outputPath,
		InputSize:  inputInfo.Size(),
		OutputSize: outputInfo.Size(),
	}, nil
}

// getBitrateValue converts quality preset to bitrate in kbps
func getBitrateValue(quality AudioQuality) int {
	switch quality {
	case AudioQualityLow:
		return 128
	case AudioQualityMedium:
		return 192
	case AudioQualityHigh:
		return 256
	case AudioQualityBest:
		return 320
	default:
		return 192 // Medium as default
	}
}

// safeOutputPath generates a non-colliding output path. If
// baseName+suffix+ext already exists it appends a timestamp.
func safeOutputPath(outputDir, baseName, suffix, ext string) string {
	candidate := filepath.Join(outputDir, baseName+suffix+"."+ext)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	ts := time.Now().Format("20060102_150405")
	return filepath.Join(outputDir, baseName+suffix+"_"+ts+"."+ext)
}
