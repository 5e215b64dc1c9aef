package pack

import (
	"context"
	"fmt"

	"github.com/atlanticdynamic/gridhost/internal/creds"
	"github.com/atlanticdynamic/gridhost/internal/widget"
)

// Result reports semantic validation of a decoded package. Errors block
// import; warnings do not.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks cross-field semantics that structure alone cannot
// enforce. credStore, when non-nil, is consulted to warn about
// credential requirements with no configured secret; a nil store warns
// for every requirement.
func Validate(ctx context.Context, pkg *Package, credStore creds.Store) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}

	candidate := pkg.Definition("candidate")
	if err := candidate.Validate(); err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	if pkg.Widget.ServerCodeEnabled && pkg.Widget.ServerCode == "" {
		// Already covered by Definition.Validate, but name it in package
		// terms so the message points at the right encoded field.
		res.Errors = append(res.Errors, "server_code_enabled is set but server_code is empty")
	}
	if pkg.Fetch.Type == widget.FetchServerCode && pkg.Widget.ServerCode == "" {
		res.Warnings = append(res.Warnings,
			"fetch type server_code with no server_code: widget will render without data")
	}
	if pkg.Widget.MinWidth > pkg.Widget.DefaultWidth && pkg.Widget.DefaultWidth > 0 {
		res.Warnings = append(res.Warnings, "default_width is below min_width")
	}
	if pkg.Widget.MinHeight > pkg.Widget.DefaultHeight && pkg.Widget.DefaultHeight > 0 {
		res.Warnings = append(res.Warnings, "default_height is below min_height")
	}

	for _, cr := range pkg.Credentials {
		if credStore == nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("credential %q (provider %s) is not configured", cr.Name, cr.Provider))
			continue
		}
		if _, err := credStore.GetCredential(ctx, cr.Provider); err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("credential %q (provider %s) is not configured", cr.Name, cr.Provider))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}
