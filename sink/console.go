package sink

import (
	"fmt"
	"os"

	"github.com/gookit/color"

	"teamlink/domain"
)

// ConsoleSink renders every dispatched message to the terminal with a
// team-colored prefix. Consume stays non-blocking: a terminal write is
// treated as instantaneous for dispatch purposes.
type ConsoleSink struct {
	out *os.File
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

var teamPalette = []color.Color{
	color.FgGreen,
	color.FgCyan,
	color.FgYellow,
	color.FgMagenta,
	color.FgBlue,
}

func (c *ConsoleSink) Consume(m domain.Message) error {
	if m.Team == "" {
		fmt.Fprintln(c.out, m.Payload)
		return nil
	}
	prefix := teamColor(m.Team).Render(fmt.Sprintf("[%s]", m.Team))
	fmt.Fprintf(c.out, "%s %s\n", prefix, m.Payload)
	return nil
}

// teamColor picks a stable color per team name.
func teamColor(team domain.TeamTag) color.Color {
	var sum int
	for _, r := range team {
		sum += int(r)
	}
	return teamPalette[sum%len(teamPalette)]
}
