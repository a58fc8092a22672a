package tracking

// Detect compares the previously observed states of a cabinet with a fresh
// fetch. The returned map holds exactly the campaigns in current; campaigns
// missing from current are dropped. An event is emitted only for campaigns
// that were Active on the previous poll and are Paused now, in the order
// they appear in current.
func Detect(prev StateMap, current []Campaign) (StateMap, []TransitionEvent) {
	next := make(StateMap, len(current))
	var events []TransitionEvent

	for _, c := range current {
		next[c.AdvertID] = c.Status

		old, seen := prev[c.AdvertID]
		if !seen {
			continue
		}
		if old == StatusActive && c.Status == StatusPaused {
			events = append(events, TransitionEvent{
				AdvertID: c.AdvertID,
				Name:     c.Name,
				From:     old,
				To:       c.Status,
			})
		}
	}

	return next, events
}
