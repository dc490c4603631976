// Package redisstore implements store.Store on Redis with optimistic
// WATCH/MULTI/EXEC transactions.
//
// # Key layout
//
//	<prefix>:user:<id>                 JSON user
//	<prefix>:email:<email>             user id (unique index)
//	<prefix>:household:<id>            JSON household
//	<prefix>:household:<id>:members    hash user id -> role
//	<prefix>:session:<id>              JSON session
//	<prefix>:user:<id>:sessions        set of session ids
//	<prefix>:rt:<id>                   JSON refresh token (expires after retention)
//	<prefix>:session:<id>:rts          set of refresh token ids
//	<prefix>:sut:<id>                  JSON single-use token (expires after retention)
//	<prefix>:user:<id>:sut:<purpose>   set of single-use token ids
//
// Index entries whose record has expired are pruned lazily when the index is
// walked.
package redisstore
