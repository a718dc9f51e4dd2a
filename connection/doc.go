// Package connection maps third-party identities to local users.
//
// A connection is keyed by (provider, external user id). The pair is
// unique in storage, so concurrent first logins of the same identity
// resolve to a single account: SignUp collapses duplicate calls in-process
// with singleflight and falls back to the stored winner when the database
// reports a duplicate.
//
// After each login the profile snapshot and provider tokens are rewritten
// asynchronously on a workers.Pool via ScheduleRefresh.
package connection
