package orchestrator

import (
	"fmt"
	"strings"
)

const bannerRule = "**************************************"

func banner(lines ...string) string {
	var b strings.Builder
	b.WriteString("\n" + bannerRule + "\n*\n*\n")
	for _, l := range lines {
		b.WriteString("*  " + l + "\n")
	}
	b.WriteString("*\n*\n" + bannerRule)
	return b.String()
}

// SuccessBanner is printed when a run ends in StateDone.
func SuccessBanner(model string, samples int) string {
	return banner("Inference Run Successful", fmt.Sprintf("model=%s samples=%d", model, samples))
}

// FailureBanner is printed when a run ends in StateFailed.
func FailureBanner(err error) string {
	return banner(
		"Error found - Unsuccessful",
		fmt.Sprintf("kind=%s step=%s", Classify(err), FailedState(err)),
		err.Error(),
	)
}
