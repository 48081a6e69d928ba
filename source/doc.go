// Package source defines the data-source contract observed by flows and the
// pieces concrete sources share.
//
// A Source is a Querier, which returns a Cursor over the rows selected by a
// Query, plus a Notifier, which calls a listener whenever a target may have
// changed. Compose joins a Querier and a Notifier that come from different
// systems.
//
// Concrete sources live in sub-packages:
//
//   - memsource: in-memory tables
//   - sqlsource: SQL tables through GORM
//   - redissource: Redis hashes with pub/sub change events
//   - filesource: CSV files watched with fsnotify
//   - s3source: S3 object listings (query only)
//   - kafkanotify: change events consumed from a Kafka topic (notify only)
//   - pollnotify: interval-driven notifications (notify only)
//
// Sources without a query engine evaluate queries with Apply, which supports
// "column = ?" selections joined by AND, multi-column sort orders and
// projections, and dispatch notifications through a Hub.
package source
