package receiver

// PlacementMode selects how a reconstructed file is written to its
// destination path (spec §9 Open Question, resolved in DESIGN.md
// "Open Questions — decisions" #2):
//
//   - PlacementTempThenRename (the default): reconstruct into a temp
//     file beside the destination and atomically rename it into place.
//     On failure the temp file is preserved when Partial is set, else
//     discarded.
//   - PlacementInPlace: write directly into the destination file,
//     overwriting matched regions and appending literal regions in
//     place. Disables the temp-file/rename path entirely; --inplace
//     wins over --partial outright, since there is no temp file to
//     keep.
//   - PlacementAppend: like PlacementInPlace, but the existing
//     destination bytes are trusted as a literal prefix rather than
//     being diffed against the basis; delta matching only covers the
//     bytes received after the existing length. --append implies
//     --inplace.
type PlacementMode int

const (
	PlacementTempThenRename PlacementMode = iota
	PlacementInPlace
	PlacementAppend
)

// ResolvePlacement implements the --inplace/--partial/--append
// precedence decision: append implies inplace, and inplace (however it
// was selected) always wins over the partial temp-file-preservation
// behavior.
func ResolvePlacement(inplace, partial, appendMode bool) (mode PlacementMode, keepPartialOnFailure bool) {
	if appendMode {
		return PlacementAppend, false
	}
	if inplace {
		return PlacementInPlace, false
	}
	return PlacementTempThenRename, partial
}
