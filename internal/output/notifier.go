package output

import (
	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/model"
)

// LogNotifier reports job progress through the logger. The daemon uses it
// when no terminal owns stdout.
type LogNotifier struct{}

func (LogNotifier) ShowProgress(n model.Notice) {
	log.Debug().Str("op", "output/notifier").Str("job", n.JobID).
		Int("percent", n.Percent).Str("speed", n.Speed).Str("eta", n.ETA).
		Msgf("progress %s", n.Title)
}

func (LogNotifier) ShowTerminal(id, title string, success bool) {
	if success {
		log.Info().Str("op", "output/notifier").Str("job", id).Msgf("downloaded %s", title)
		return
	}
	log.Error().Str("op", "output/notifier").Str("job", id).Msgf("download failed %s", title)
}
