// Package password implements the secret hasher used for passwords and for the
// secret half of refresh and single-use tokens.
//
// # Algorithms
//
//   - [Bcrypt] (default, cost 12) via golang.org/x/crypto/bcrypt.
//   - [Argon2] (argon2id, PHC encoded) via golang.org/x/crypto/argon2:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both satisfy [Hasher]. [Dummy] equalises the cost of a lookup miss with the
// cost of a real verification.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets.
//   - Import any other finauth package.
//   - Log plaintext secrets or hash parameters at runtime.
package password
