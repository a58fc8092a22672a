package bot

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

// menu button labels
const (
	btnAddCabinet    = "Add cabinet"
	btnEditCabinet   = "Edit cabinet"
	btnShowCampaigns = "Show campaigns"
	btnTracking      = "Cabinet tracking"
	btnCancel        = "Cancel"
)

const keepKey = "-"

const (
	msgWelcome          = "Welcome! You are in the main menu."
	msgUseMenu          = "Use the menu buttons."
	msgCancelled        = "Cancelled. Back to the main menu."
	msgBackToMenu       = "Back to the menu."
	msgEditCancelled    = "Edit cancelled."
	msgNotFound         = "Cabinet not found."
	msgNoCabinetsEdit   = "No saved cabinets. Add a cabinet first."
	msgNoCabinets       = "No saved cabinets. Add a cabinet!"
	msgAskName          = "Enter a name for the new cabinet (for example, «Main»):"
	msgEmptyName        = "The cabinet name cannot be empty. Enter a name:"
	msgSelectEdit       = "Choose a cabinet to edit:"
	msgSelectCampaigns  = "Choose a cabinet to show campaigns:"
	msgSelectTracking   = "Choose a cabinet to turn tracking on or off:"
	msgAskNewKey        = "Enter a new WB API key, or send «-» to keep the current one:"
	msgFetchFailed      = "Failed to fetch campaigns."
	msgInternalError    = "Something went wrong. Please try again."
	msgCabinetLimitTmpl = "You already have %d cabinets. To change one, choose «Edit cabinet»."
)

func mainKeyboard() *Keyboard {
	return &Keyboard{Rows: [][]string{
		{btnAddCabinet, btnEditCabinet},
		{btnShowCampaigns, btnTracking},
	}}
}

func removeKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// cabinetKeyboard lists one cabinet per row followed by Cancel.
func cabinetKeyboard(cabs []tracking.Cabinet) *Keyboard {
	rows := make([][]string, 0, len(cabs)+1)
	for _, c := range cabs {
		rows = append(rows, []string{c.Name})
	}
	rows = append(rows, []string{btnCancel})
	return &Keyboard{Rows: rows}
}

// trackingKeyboard labels each cabinet with its current tracking indicator.
func trackingKeyboard(cabs []tracking.Cabinet, isTracking func(name string) bool) *Keyboard {
	rows := make([][]string, 0, len(cabs)+1)
	for _, c := range cabs {
		rows = append(rows, []string{trackingLabel(c.Name, isTracking(c.Name))})
	}
	rows = append(rows, []string{btnCancel})
	return &Keyboard{Rows: rows}
}

func trackingLabel(name string, on bool) string {
	return name + " " + tracking.Indicator(on)
}

// stripIndicator removes a trailing tracking indicator from a keyboard label.
func stripIndicator(label string) string {
	s := strings.TrimSpace(label)
	for _, ind := range []string{tracking.Indicator(true), tracking.Indicator(false)} {
		if strings.HasSuffix(s, ind) {
			return strings.TrimSpace(strings.TrimSuffix(s, ind))
		}
	}
	return s
}

func isButton(text, button string) bool {
	return strings.EqualFold(strings.TrimSpace(text), button)
}

func limitMessage(n int) string {
	return fmt.Sprintf(msgCabinetLimitTmpl, n)
}

func trackingMessage(name string, on bool) string {
	if on {
		return fmt.Sprintf("Tracking for cabinet «%s» is on %s.", name, tracking.Indicator(true))
	}
	return fmt.Sprintf("Tracking for cabinet «%s» is off %s.", name, tracking.Indicator(false))
}
