// Package exp is the reputation ledger: append-only deltas, the level
// function, attestation reward tiers, vote gating and spam penalties.
package exp

import "math"

// Delta reasons recorded in the ledger.
const (
	ReasonAttestation      = "attestation"
	ReasonUpvoteReceived   = "upvote_received"
	ReasonDownvoteReceived = "downvote_received"
	ReasonSpamDetected     = "spam_detected"
	ReasonSpamConfirmed    = "spam_confirmed"
	ReasonWeeklyActivity   = "weekly_activity"
)

// Fixed delta amounts.
const (
	SpamDetectedPenalty  = -5
	SpamConfirmedPenalty = -50
	WeeklyActivityReward = 10
)

// VoterGate is the minimum voter total for a vote to move the author's
// balance. Fresh throwaway accounts cannot farm or grief reputation.
const VoterGate = 10

// SpamConfirmThreshold is the distinct-reporter count that confirms a post
// as spam.
const SpamConfirmThreshold = 3

// MinAttestorLevel is the lowest level allowed to attest another agent.
const MinAttestorLevel = 2

// Level maps an EXP total to a level: floor(log10(max(total,0)+1) * 10).
func Level(total int64) int {
	if total < 0 {
		total = 0
	}
	return int(math.Floor(math.Log10(float64(total)+1) * 10))
}

// AttestationReward is the tiered grant an attestation confers, keyed by
// the attestor's level. Levels below MinAttestorLevel earn nothing and are
// rejected before this is consulted.
func AttestationReward(attestorLevel int) int64 {
	switch {
	case attestorLevel >= 11:
		return 100
	case attestorLevel >= 6:
		return 50
	case attestorLevel >= MinAttestorLevel:
		return 25
	default:
		return 0
	}
}
