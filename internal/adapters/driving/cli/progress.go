package cli

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

// progressSetter is implemented by ingestion services that report
// pipeline progress.
type progressSetter interface {
	SetProgress(progress services.ProgressFunc)
}

// stageLabels name the pipeline stages for display.
var stageLabels = map[string]string{
	services.StageExtract: "Extracting",
	services.StageFetch:   "Fetching links",
	services.StageChunk:   "Chunking",
	services.StageEmbed:   "Embedding",
	services.StageIndex:   "Indexing",
}

// attachProgress shows pipeline progress on w while an ingestion runs.
// The embed stage gets a progress bar; other stages print one line each.
// Nothing is shown unless w is a terminal. The returned function detaches.
func attachProgress(w io.Writer) func() {
	setter, ok := ingestionService.(progressSetter)
	if !ok || !isTerminal(w) {
		return func() {}
	}

	var bar *progressbar.ProgressBar
	setter.SetProgress(func(stage string, done, total int) {
		if stage != services.StageEmbed {
			if done == 0 {
				_, _ = io.WriteString(w, stageLabels[stage]+"...\n")
			}
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(stageLabels[stage]),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	})

	return func() {
		setter.SetProgress(nil)
		if bar != nil {
			_ = bar.Finish()
		}
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
