// Package broadcaster publishes committed conversions to downstream
// consumers. Conversions are taken from the store's outbox, which is written
// in the same transaction as the audit log entry, so a conversion is
// published at least once even when the process stops between commit and
// publish.
package broadcaster
