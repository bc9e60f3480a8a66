// Package auth is the credential core of the forum: password logins with a
// rolling window lockout, password reset tokens, email verification and the
// account constructor shared with the social package.
//
// Lockout:
//   - LockoutWindow counts failures since the first failure inside a window.
//     Logins use 6h / 20 attempts, reset token consumption uses 3 days / 20
//     attempts. Both counters live on the same Credential row and are cleared
//     by a successful login or reset.
//
// Transactions:
//   - Every entry point runs in one RepositoryManager.RunInTx call. Credential,
//     email secret and identity rows are read FOR UPDATE on PostgreSQL.
//   - Failed attempts are committed even though the call reports a failure.
//
// Notifications:
//   - Flows never talk to a mailer. They write OutboxTask rows in the same
//     transaction and OutboxRelay hands them to a Dispatcher afterwards, at
//     least once.
//
// Activity sinks:
//   - ActivitySink receives login, reset, email and identity events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or queue
//     without blocking authentication.
package auth
