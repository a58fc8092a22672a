package tracking

import (
	"fmt"
	"strings"
)

const unnamedCampaign = "—"

// RenderTransitions builds the notification text for a cabinet's events.
func RenderTransitions(cabinet string, events []TransitionEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Changes in cabinet «%s»:", cabinet)
	for _, e := range events {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Campaign «%s» is now %s", campaignName(e.Name), e.To.Label())
	}
	return b.String()
}

// RenderCampaigns builds the listing shown for "Show campaigns".
func RenderCampaigns(campaigns []Campaign) string {
	if len(campaigns) == 0 {
		return "No campaigns match the filter."
	}
	parts := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		parts = append(parts, fmt.Sprintf("Name: %s\nStatus: %s\n", campaignName(c.Name), c.Status.Label()))
	}
	return strings.Join(parts, "\n")
}

// Indicator returns the tracking marker shown next to a cabinet name.
func Indicator(on bool) string {
	if on {
		return "✅"
	}
	return "❌"
}

func campaignName(name string) string {
	if strings.TrimSpace(name) == "" {
		return unnamedCampaign
	}
	return name
}
