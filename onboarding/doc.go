// Package onboarding defines the account progression every user walks
// through after first verification, and the rules that keep it monotonic.
//
// # Steps
//
//	PHONE_VERIFICATION → PROFILE_SETUP → INTERESTS_SELECTION →
//	COMMUNITY_RECOMMENDATIONS → COMPLETED
//
// Each step is left by exactly one [Event]. Replaying the event of a step the
// account already passed is a no-op; an event for a step the account has not
// reached is rejected with [ErrOutOfOrder]. No path moves an account
// backwards ([ErrRegression]).
//
// # Phone gate
//
// Accounts created through federated identity may skip ahead while their
// phone is still unverified. [Effective] reports PHONE_VERIFICATION for such
// accounts whatever their stored step is, so gated mutations stay closed
// until the phone is verified.
package onboarding
