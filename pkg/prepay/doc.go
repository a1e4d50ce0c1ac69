// Package prepay tracks group-level prepaid balances across billing months:
// dated credit top-ups, usage debits, project membership and group contacts.
// Balances are derived values; the ledger itself is read once per run and
// written back by the driver with the debits the run produced.
package prepay
