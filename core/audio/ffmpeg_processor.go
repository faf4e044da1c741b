package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegProcessor wraps ffmpeg/ffprobe invocations.
type FFmpegProcessor struct {
	ffmpegPath string
	bitrate    string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(ffmpegPath, bitrate string) *FFmpegProcessor {
	if bitrate == "" {
		bitrate = "192k"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, bitrate: bitrate}
}

// FFmpegPath returns the configured ffmpeg binary path.
func (p *FFmpegProcessor) FFmpegPath() string {
	return p.ffmpegPath
}

func (p *FFmpegProcessor) ffprobePath() string {
	return strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe 探测音频文件的编码和总时长（秒）。
// 文件不是合法音频容器时返回错误。
func (p *FFmpegProcessor) Probe(ctx context.Context, inputFile string) (codec string, duration float64, err error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath(), args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return "", 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}

	if len(probeData.Streams) == 0 {
		return "", 0, fmt.Errorf("no audio streams found in file")
	}

	if probeData.Format.Duration == "" {
		return "", 0, fmt.Errorf("duration not found in ffprobe output for %s", inputFile)
	}

	d, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse duration string %q: %w", probeData.Format.Duration, err)
	}

	return probeData.Streams[0].CodecName, d, nil
}

// Encode 把输入文件的 [startSec, startSec+durSec] 窗口重编码为MP3并写入stdout。
// durSec <= 0 表示编码到文件末尾。
func (p *FFmpegProcessor) Encode(ctx context.Context, inputFile string, startSec, durSec float64) ([]byte, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
	}
	if startSec > 0 {
		args = append(args, "-ss", strconv.FormatFloat(startSec, 'f', 3, 64))
	}
	if durSec > 0 {
		args = append(args, "-t", strconv.FormatFloat(durSec, 'f', 3, 64))
	}
	args = append(args,
		"-i", inputFile,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", p.bitrate,
		"-f", "mp3",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}

	return out.Bytes(), nil
}
