package merge

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quranload/audiocore/internal/infra/ffmpeg"
)

// outputPrefix is the file name prefix of merged recordings.
const outputPrefix = "output_"

// OutputPath returns the merged file path for fragments: the first fragment's
// directory, named output_<suffix>.<ext>.
func OutputPath(fragments []string, suffix, extension string) string {
	return filepath.Join(filepath.Dir(fragments[0]), outputPrefix+suffix+"."+extension)
}

// ConcatFilter returns the filter graph joining n audio inputs in order.
func ConcatFilter(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:a]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[out]", n)
	return b.String()
}

// BuildCommand builds the ffmpeg invocation merging fragments into output.
// A single fragment is re-encoded directly without the concat filter.
func BuildCommand(fragments []string, output string, profile Profile) ffmpeg.Command {
	args := []string{"-hide_banner", "-nostdin", "-n"}

	for _, path := range fragments {
		args = append(args, "-i", path)
	}

	if len(fragments) > 1 {
		args = append(args, "-filter_complex", ConcatFilter(len(fragments)), "-map", "[out]")
	} else {
		args = append(args, "-map", "0:a")
	}

	args = append(args,
		"-vn",
		"-c:a", profile.Codec,
		"-q:a", strconv.Itoa(profile.Quality),
	)
	if profile.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(profile.SampleRate))
	}
	if profile.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(profile.Channels))
	}

	args = append(args, output)
	return ffmpeg.Command{Args: args}
}
