// Package archive packs named resources into a signed SZDT archive and reads
// them back.
//
// An archive is a sequence of canonical records with no outer framing:
//
//	memo ‖ manifest ‖ body₁ ‖ body₂ ‖ …
//
// The memo signs the manifest by digest; the manifest lists every body by
// digest, encoded record length and path, in the order the bodies follow.
// Because lengths are record lengths, the byte range of any body can be
// computed from the header alone, which is what OpenAt uses for random
// access.
package archive
