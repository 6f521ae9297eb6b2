// Package memo implements the SZDT signed envelope.
//
// A Memo pairs protected headers, covered by an Ed25519 signature, with
// unprotected headers that anyone may rewrite. The body is never embedded: the
// protected "src" header holds its digest, so memo and body can travel and be
// verified separately.
//
// Signing encodes the protected headers canonically, digests the encoding with
// BLAKE3 and signs the 32-byte digest. Only Unprotected.Sig changes.
//
// Verification is split into independent steps so callers pick what they need:
//
//	m.VerifySignature()            // authenticity of the protected headers
//	m.VerifyTimestamps(now, skew)  // nbf / exp window
//	m.VerifyContent(body)          // body digest against src
//
// Validate runs the first two and Verify runs all three.
package memo
