// Package rates fetches the published dated rates document used to look up
// charge amounts and policy flags effective for a given invoice month.
package rates
