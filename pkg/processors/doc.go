// Package processors implements the record-processing pipeline: an ordered
// chain of stages sharing one exclusively-owned record set.
//
// Each stage implements the Stage interface and declares, via Requires, the
// stages whose output columns it reads. The Pipeline runs stages strictly in
// the declared order and aborts on the first error; there is no partial
// commit and no retry. Stages that derive new ledger state (new-PI credits,
// prepay debits) expose it as output fields for the driver to persist, they
// never write it themselves.
//
// Stage order mirrors the billing policy: enrichment (cluster validation,
// allocation data, PI aliases, institutions), vendor charges, billability
// classification, then the money stages in the fixed order credit, subsidy,
// prepayment.
package processors
