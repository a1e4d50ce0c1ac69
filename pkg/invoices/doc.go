// Package invoices defines the usage-record data model shared by every
// pipeline stage: the invoice Month type, the UsageRecord row, the Dataset
// record set with stage-precondition tracking, and the CSV codec for the
// upstream invoice schema.
package invoices
