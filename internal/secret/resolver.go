// resolver.go shells out to the password manager CLI (`op`) to resolve
// secret references. All resolution goes through the Resolver interface so
// the provisioning and injection code can be tested without a real vault.
package secret

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/panzer1119/homelabctl/internal/model"
)

// Resolver resolves op:// references to their secret values.
type Resolver interface {
	// Resolve returns the secret value for the given op:// reference.
	Resolve(ctx context.Context, ref string) (string, error)
}

// OpCLI resolves references by invoking `op read`. Results are cached for
// the lifetime of the resolver, so each distinct reference costs at most
// one subprocess per run — relevant because `op` may prompt for biometric
// or session unlock on first use.
type OpCLI struct {
	// Account optionally pins the `op` account to use (--account flag).
	// Empty means the CLI's default account.
	Account string

	// cache maps reference URIs to already-resolved values.
	// Lazily initialized on first Resolve.
	cache map[string]string
}

// NewOpCLI creates a resolver backed by the `op` CLI.
func NewOpCLI(account string) *OpCLI {
	return &OpCLI{Account: account}
}

// Resolve implements Resolver by running `op read <ref>`.
//
// The reference is validated locally first so obvious typos fail with a
// parse error rather than an opaque CLI failure. `op read` prints the
// secret followed by a newline, which is trimmed.
func (o *OpCLI) Resolve(ctx context.Context, ref string) (string, error) {
	if _, err := ParseRef(ref); err != nil {
		return "", err
	}

	if o.cache == nil {
		o.cache = make(map[string]string)
	}
	if value, ok := o.cache[ref]; ok {
		return value, nil
	}

	args := []string{"read", ref}
	if o.Account != "" {
		args = append(args, "--account", o.Account)
	}

	cmd := exec.CommandContext(ctx, "op", args...)
	// Capture stderr separately: `op` writes its diagnostics there and the
	// secret value to stdout. Mixing them would corrupt the secret.
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", model.NewCLIError(model.ExitSecretResolveFailed,
			fmt.Sprintf("failed to resolve %s: %s", ref, detail))
	}

	value := strings.TrimRight(string(out), "\n")
	o.cache[ref] = value
	return value, nil
}

// Static is a Resolver backed by a fixed map, used in tests and dry runs.
type Static map[string]string

// Resolve implements Resolver from the map. Unknown references are an error,
// mirroring the CLI resolver's behavior for nonexistent items.
func (s Static) Resolve(_ context.Context, ref string) (string, error) {
	value, ok := s[ref]
	if !ok {
		return "", model.NewCLIError(model.ExitSecretResolveFailed,
			fmt.Sprintf("failed to resolve %s: no such secret", ref))
	}
	return value, nil
}

// ResolveValue resolves a value that may or may not be a secret reference.
// Literal values pass through unchanged; op:// references are resolved.
// This is the entry point used by volume provisioning, where a password
// label may hold either form.
func ResolveValue(ctx context.Context, r Resolver, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	return r.Resolve(ctx, strings.TrimSpace(value))
}
