package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/nexxt-run/nexxt/version"
)

// printStartupBanner renders the pterm startup banner showing the
// activated application name and verbosity.
func printStartupBanner(appName, verbosity string) {
	pterm.DefaultBigText.WithLetters(pterm.NewLettersFromStringWithStyle("nexxT", pterm.NewStyle(pterm.FgCyan))).Render()

	info := version.Get()
	pterm.DefaultBox.WithTitle("nexxt").WithTitleTopCenter().Println(
		fmt.Sprintf("Application: %s\nVersion:     %s (%s)\nVerbosity:   %s",
			appName, info.Version, info.Short(), verbosity),
	)
}
