// Package oldpi holds the historical ledger of previously billed PIs, used
// to decide new-PI credit eligibility and to track how much introductory
// credit each PI has consumed.
package oldpi
