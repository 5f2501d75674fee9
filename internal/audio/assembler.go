// Package audio assembles per-turn mp3 segments into a single episode file.
// Segments are joined back to back with a short silence between turns so the
// host handoff doesn't sound clipped.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prcast/internal/services"
)

// Segment bitrate assumed for duration estimates. Rendering requests 128kbps
// mp3, so byte length maps to playing time closely enough for feed metadata.
const segmentBitrate = 128000

// mp3FrameDuration is the playing time of one MPEG-1 Layer III frame at 44.1kHz.
const mp3FrameDuration = 26122 * time.Microsecond

// silentFrame is one MPEG-1 Layer III mono frame at 128kbps/44.1kHz whose
// side info and main data are all zero, which decodes as silence. Repeating
// it produces a gap without re-encoding the neighboring segments.
var silentFrame = func() []byte {
	frame := make([]byte, 417)
	frame[0] = 0xFF
	frame[1] = 0xFB
	frame[2] = 0x90
	frame[3] = 0xC4
	return frame
}()

// Assembler concatenates rendered segments into episode files.
type Assembler struct {
	outputDir string
	turnGap   time.Duration
}

// NewAssembler builds an assembler writing under outputDir with the given
// inter-turn gap.
func NewAssembler(outputDir string, turnGap time.Duration) *Assembler {
	if turnGap < 0 {
		turnGap = 0
	}
	return &Assembler{outputDir: outputDir, turnGap: turnGap}
}

// Episode describes the assembled audio artifact.
type Episode struct {
	Path     string        `json:"path"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Turns    int           `json:"turns"`
}

// Assemble joins the segments with silence gaps and writes the result to
// <outputDir>/<repo>/<episodeID>.mp3. Writing is atomic: the file appears
// complete or not at all.
func (a *Assembler) Assemble(repo, episodeID string, segments [][]byte) (*Episode, error) {
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "rendering", "assemble", "no segments", nil)
	}
	for i, segment := range segments {
		if len(segment) == 0 {
			return nil, services.Wrap(services.ErrValidation, "rendering", "assemble", fmt.Sprintf("segment %d is empty", i), nil)
		}
	}

	gap := silenceBytes(a.turnGap)
	var data []byte
	for i, segment := range segments {
		if i > 0 {
			data = append(data, gap...)
		}
		data = append(data, segment...)
	}

	dir := filepath.Join(a.outputDir, SanitizeRepo(repo))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "rendering", "assemble", "create episode directory", err)
	}
	target := filepath.Join(dir, episodeID+".mp3")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrTransient, "rendering", "assemble", "write episode", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return nil, services.Wrap(services.ErrTransient, "rendering", "assemble", "finalize episode", err)
	}

	return &Episode{
		Path:     target,
		Bytes:    int64(len(data)),
		Duration: EstimateDuration(int64(len(data))),
		Turns:    len(segments),
	}, nil
}

// EstimateDuration approximates playing time from byte length at the assumed
// bitrate.
func EstimateDuration(byteLen int64) time.Duration {
	seconds := float64(byteLen*8) / segmentBitrate
	return time.Duration(seconds * float64(time.Second)).Round(time.Second)
}

// SanitizeRepo maps an owner/name repository to a filesystem-safe directory name.
func SanitizeRepo(repo string) string {
	replaced := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, repo)
	return strings.Trim(replaced, "-.")
}

func silenceBytes(gap time.Duration) []byte {
	if gap <= 0 {
		return nil
	}
	frames := int((gap + mp3FrameDuration - 1) / mp3FrameDuration)
	data := make([]byte, 0, frames*len(silentFrame))
	for i := 0; i < frames; i++ {
		data = append(data, silentFrame...)
	}
	return data
}
