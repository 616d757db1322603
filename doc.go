// Package accounts provides user account management with RS256 access and
// refresh tokens, bun backed repositories and a JSON HTTP controller.
//
// Tokens:
//   - RSASigner signs and verifies compact JWTs. Access and refresh tokens
//     share one key pair and are told apart by their audience tag.
//   - TokenIssuer builds the claim sets, merges claim fragments from the
//     registered ClaimProviders and signs the pair. TokenVerifier checks the
//     signature, then the audience, then the expiry.
//   - PublicKeySet publishes the verification key as a JWK Set so other
//     services can check tokens without sharing the private key.
//
// Account state:
//   - AccountStateGuard refuses tokens for unconfirmed accounts and applies
//     the registration Policy. Flags are read once at startup.
//
// Activity sinks:
//   - ActivitySink receives login, refresh, registration, activation and
//     password events. Sinks run best effort so a failing sink never blocks
//     authentication.
package accounts
