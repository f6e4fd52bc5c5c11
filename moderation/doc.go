// Package moderation wires the event store, suspension state, detection engine and trigger policy into a single Service used by request handlers.
//
// Typical flow: a report or block handler calls ReportPost or BlockUser, which records the event and asks the trigger policy to schedule a detection pass. Login and posting handlers call IsLoginSuspended and IsPostingSuspended, which fail open.
package moderation
