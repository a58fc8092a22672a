// Package tracking provides the campaign tracking core for wbtrack.
// It defines the owner record model, the transition detector, the locked
// record repository (Records), the per-cabinet Poller, and the Registry that
// owns one recurring poll job per tracked (owner, cabinet) pair.
package tracking
