// Package keys is a local keystore that maps nicknames to Ed25519 identities.
//
// Each nickname is a directory under the store root holding either a private
// seed (root.key) or, for contacts imported from archives, only the issuer's
// DID (did.txt). Role keys derived from a root seed live under roles/.
//
// Seeds are stored as hex on disk with 0600 permissions and no further
// protection. The signing capability handed to the rest of the module is a
// *memo.Ed25519Signer; nothing outside this package touches key files.
package keys
