// Package outbox persists evidence records and their anchoring jobs in
// SQLite. It is the system of record: the submission and confirmation loops
// coordinate exclusively through the status transitions this store exposes,
// and every transition that spans multiple rows happens in one transaction.
package outbox
