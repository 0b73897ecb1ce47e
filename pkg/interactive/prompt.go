// Package interactive prompts the operator for the choices the patch
// engine cannot make on its own: which configured patch directory and
// filename to capture a new patch into, and whether to continue past
// a patch application failure. Prompts are skipped — and the caller
// must supply an unambiguous fallback or fail — whenever
// GIMERA_NON_INTERACTIVE is set or stdout is not a terminal, per spec
// §4.6/§5.
//
// charmbracelet/huh is used for the prompts themselves; the pack's
// go.mod references (Mschirtzinger-jj-beads, Gizzahub-gzh-cli-gitforge)
// establish it as the ecosystem's pairing for Cobra-based CLIs, though
// none of those repos' source made it into the retrieval pack, so the
// prompt shapes below follow huh's own documented API rather than an
// in-pack usage example.
package interactive

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/output"
)

// Enabled reports whether prompts may be shown at all.
func Enabled() bool {
	return !envtoggle.NonInteractive() && output.IsTTY()
}

// ChoosePatchDir asks which configured patch directory a freshly
// captured patch should be written under. In non-interactive mode this
// succeeds only when there is exactly one candidate.
func ChoosePatchDir(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no patch directories configured for this entry")
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if !Enabled() {
		return "", fmt.Errorf("multiple patch directories configured; non-interactive mode requires exactly one (GIMERA_NON_INTERACTIVE set or not a terminal)")
	}

	var chosen string
	opts := make([]huh.Option[string], 0, len(candidates))
	for _, c := range candidates {
		opts = append(opts, huh.NewOption(c, c))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which patch directory should this patch be written to?").
				Options(opts...).
				Value(&chosen),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("patch directory prompt: %w", err)
	}
	return chosen, nil
}

// ChoosePatchFilename asks for the filename a freshly captured patch
// should be saved under, defaulting to suggested.
func ChoosePatchFilename(suggested string) (string, error) {
	if !Enabled() {
		return suggested, nil
	}

	name := suggested
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Patch filename").
				Value(&name),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("patch filename prompt: %w", err)
	}
	if name == "" {
		name = suggested
	}
	return name, nil
}

// Choose asks the operator to pick one of candidates under title,
// failing in non-interactive mode unless there is exactly one
// candidate. Used anywhere a list needs picking from outside the
// patch-directory flow ChoosePatchDir covers (snaprestore's token
// list, for instance).
func Choose(title string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("nothing to choose from")
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if !Enabled() {
		return "", fmt.Errorf("multiple candidates; non-interactive mode requires exactly one (GIMERA_NON_INTERACTIVE set or not a terminal)")
	}

	var chosen string
	opts := make([]huh.Option[string], 0, len(candidates))
	for _, c := range candidates {
		opts = append(opts, huh.NewOption(c, c))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(opts...).
				Value(&chosen),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("selection prompt: %w", err)
	}
	return chosen, nil
}

// Confirm asks a yes/no question with title, defaulting to false (and
// to non-interactive callers) when prompts are disabled. Used by
// commands (commit, purge) that need a plain confirmation outside the
// patch-apply-failure flow ConfirmContinueAfterPatchFailure covers.
func Confirm(title string, defaultValue bool) bool {
	if !Enabled() {
		return false
	}

	answer := defaultValue
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return answer
}

// ConfirmContinueAfterPatchFailure asks whether to proceed to the next
// patch file after one failed to apply. Non-interactive mode always
// answers false (fail hard), per spec §4.6.
func ConfirmContinueAfterPatchFailure(patchFile string) bool {
	if !Enabled() {
		return false
	}

	var cont bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s failed to apply. Continue with the next file?", patchFile)).
				Value(&cont),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return cont
}
