// Package krypto provides the small set of cryptographic helpers used by the
// social login flow.
//
// # Tokens
//
// GenerateURLToken produces the unguessable nonce carried in the OAuth2
// state parameter. GenerateSecureToken and GenerateRandomString cover hex
// identifiers and alphanumeric placeholders.
//
//	nonce, err := krypto.GenerateURLToken(32)
//
// # Password Hashing
//
// Users created by automatic sign-up never log in with a password. They still
// get an Argon2id hash of a random value so the password column is never a
// usable credential:
//
//	hash, err := krypto.Argon2idHashPassword(krypto.GenerateRandomString(32))
//	ok, err := krypto.Argon2idVerifyPassword(candidate, hash)
//
// # Token Encryption
//
// Provider access and refresh tokens stored with a connection are sealed with
// AES-GCM when an encryption key is configured:
//
//	c, err := krypto.NewCipherFromKey(os.Getenv("BEAVER_CONNECTION_ENCRYPTION_KEY"))
//	sealed, err := c.Seal(accessToken)
//	plain, err := c.Open(sealed)
//
// An empty key yields NopCipher, which stores values unchanged.
//
// All functions are safe for concurrent use.
package krypto
