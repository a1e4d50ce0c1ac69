// Package exports is the invoice-assembly boundary. It takes the fully
// processed record set, every computed column populated, and produces the
// per-payer artifacts: the billable and nonbillable invoices, the
// consortium-wide and institution-internal totals, per-PI and per-prepaid-group
// invoices and the prepay balance snapshot. Exporters group, total and format
// only.
package exports
