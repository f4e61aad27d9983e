// Package remediation decides when a failing backend may be restarted or
// reconnected and runs the corrective action.
//
// Each backend moves through the phases ok, failing, remediating and
// cooldown. An attempt is started only when the backend has never been
// remediated or the cooldown since the last attempt has elapsed, which
// bounds the number of attempts over any window of continuous failure.
package remediation
