// crowdsense-inspect is an offline analysis tool: it parses JPEG frames
// in the coefficient domain, reports geometry and quality, and renders
// the change map between two frames as a heat grid. It also dumps event
// journal files written by crowdsensed.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/visiona/crowdsense/internal/detect"
	"github.com/visiona/crowdsense/internal/jpeg"
	"github.com/visiona/crowdsense/internal/journal"
)

var (
	// Color printers
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
)

func printInfo(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", infoColor("[*]"), fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", successColor("[+]"), fmt.Sprintf(format, args...))
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", errorColor("[-]"), fmt.Sprintf(format, args...))
}

func main() {
	var (
		filePath    = flag.String("file", "", "Path to a JPEG to analyze")
		diffPath    = flag.String("diff", "", "Second JPEG; renders the change map against -file")
		journalPath = flag.String("journal", "", "Path to a crowdsensed event journal to dump")
		sensitivity = flag.Int("sensitivity", 1, "User sensitivity 1..256 for the diff grid")
	)
	flag.Parse()

	switch {
	case *journalPath != "":
		if err := dumpJournal(*journalPath); err != nil {
			printError("%v", err)
			os.Exit(1)
		}
	case *filePath != "" && *diffPath != "":
		if err := diffFrames(*filePath, *diffPath, *sensitivity); err != nil {
			printError("%v", err)
			os.Exit(1)
		}
	case *filePath != "":
		if err := analyzeFrame(*filePath); err != nil {
			printError("%v", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func loadFrame(path string) (jpeg.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jpeg.Frame{}, err
	}
	frame, err := jpeg.NewScanner().Decode(data, nil)
	if err != nil {
		if pe, ok := jpeg.AsParseError(err); ok {
			return jpeg.Frame{}, fmt.Errorf("%s: %s (%s)", path, pe.Msg, pe.Kind)
		}
		return jpeg.Frame{}, err
	}
	return frame, nil
}

func analyzeFrame(path string) error {
	frame, err := loadFrame(path)
	if err != nil {
		return err
	}

	printSuccess("parsed %s", path)
	printInfo("dimensions:  %dx%d px", frame.Width, frame.Height)
	printInfo("luma blocks: %dx%d (%d)", frame.BlockNumX, frame.BlockNumY, frame.BlockCount())
	printInfo("q factor:    %d", frame.QFactor)

	// Coefficient energy summary: mean absolute DC and AC magnitude.
	var dcSum, acSum int64
	for b := 0; b < frame.BlockCount(); b++ {
		blk := frame.Block(b)
		dcSum += absInt64(blk[0])
		for k := 1; k < 64; k++ {
			acSum += absInt64(blk[k])
		}
	}
	n := int64(frame.BlockCount())
	printInfo("mean |DC|:   %d", dcSum/n)
	printInfo("mean |AC|:   %d per block", acSum/n)
	return nil
}

func diffFrames(pathA, pathB string, userSensitivity int) error {
	a, err := loadFrame(pathA)
	if err != nil {
		return err
	}
	b, err := loadFrame(pathB)
	if err != nil {
		return err
	}

	threshold := detect.SensitivityMax + 1 - userSensitivity
	changeMap := make([]int, a.BlockCount())
	count, max, ok := detect.Diff(&b, &a, true, true, changeMap, threshold)
	if !ok {
		return fmt.Errorf("frames are not comparable (geometry %dx%d vs %dx%d, q %d vs %d)",
			a.BlockNumX, a.BlockNumY, b.BlockNumX, b.BlockNumY, a.QFactor, b.QFactor)
	}

	pct := 100.0 * float64(count) / float64(len(changeMap))
	printSuccess("compared %s -> %s", pathA, pathB)
	printInfo("detected blocks: %d of %d (%.1f%%)", count, len(changeMap), pct)
	printInfo("max magnitude:   %d (threshold %d)", max, threshold)
	renderHeatGrid(os.Stdout, changeMap, a.BlockNumX, threshold)
	return nil
}

// renderHeatGrid prints the change map as one character per block.
func renderHeatGrid(w io.Writer, changeMap []int, blockNumX, threshold int) {
	ramp := []byte(" .:-=+*#%@")
	hot := color.New(color.FgRed).SprintFunc()
	for i, v := range changeMap {
		idx := v * (len(ramp) - 1) / 255
		ch := string(ramp[idx])
		if v >= threshold {
			ch = hot(ch)
		}
		fmt.Fprint(w, ch)
		if (i+1)%blockNumX == 0 {
			fmt.Fprintln(w)
		}
	}
}

func dumpJournal(path string) error {
	r, err := journal.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	n := 0
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		n++
		printInfo("#%d seq=%d trace=%s area=%.1f%% blocks=%d max=%d q=%d %dx%d",
			n, ev.Seq, ev.TraceID, ev.AreaPct, ev.DetectedBlocks, ev.MaxMagnitude,
			ev.QFactor, ev.Width, ev.Height)
	}
	printSuccess("%d records", n)
	return nil
}

func absInt64(v int16) int64 {
	if v < 0 {
		return int64(-int32(v))
	}
	return int64(v)
}
