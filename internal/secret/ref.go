// Package secret resolves op:// secret references and materializes ref.*
// template files into their secret-bearing counterparts.
//
// Secrets live in a password manager reached through its CLI (`op`). This
// package never stores secrets anywhere except the output files explicitly
// requested by the user, which are written with mode 0600.
//
// Two reference styles are supported, matching the conventions of the
// compose repository:
//
//   - Bare references as label or env values:  op://Docker/NAS/password
//   - Template placeholders inside ref.* files: {{ op://Docker/NAS/password }}
package secret

import (
	"fmt"
	"regexp"
	"strings"
)

// RefScheme is the URI scheme marking a secret reference.
const RefScheme = "op://"

// Ref is a parsed op:// secret reference of the form
// op://<vault>/<item>/[<section>/]<field>.
type Ref struct {
	// Vault is the password manager vault name (e.g. "Docker").
	Vault string

	// Item is the item name within the vault.
	Item string

	// Section is the optional section within the item.
	Section string

	// Field is the field holding the secret value.
	Field string
}

// String reassembles the canonical op:// URI for the reference.
func (r Ref) String() string {
	if r.Section != "" {
		return RefScheme + r.Vault + "/" + r.Item + "/" + r.Section + "/" + r.Field
	}
	return RefScheme + r.Vault + "/" + r.Item + "/" + r.Field
}

// IsRef reports whether the value looks like an op:// secret reference.
// Used to decide whether a label value needs resolution before use.
func IsRef(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), RefScheme)
}

// ParseRef parses an op:// URI into its components. The reference must have
// three path segments (vault/item/field) or four (vault/item/section/field);
// anything else is rejected.
func ParseRef(raw string) (Ref, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, RefScheme) {
		return Ref{}, fmt.Errorf("not a secret reference: %q (expected %s prefix)", raw, RefScheme)
	}

	parts := strings.Split(strings.TrimPrefix(trimmed, RefScheme), "/")
	for _, p := range parts {
		if p == "" {
			return Ref{}, fmt.Errorf("malformed secret reference %q: empty path segment", raw)
		}
	}

	switch len(parts) {
	case 3:
		return Ref{Vault: parts[0], Item: parts[1], Field: parts[2]}, nil
	case 4:
		return Ref{Vault: parts[0], Item: parts[1], Section: parts[2], Field: parts[3]}, nil
	default:
		return Ref{}, fmt.Errorf("malformed secret reference %q: expected op://<vault>/<item>/[<section>/]<field>", raw)
	}
}

// placeholderRegex matches {{ op://... }} template placeholders. The inner
// reference is captured without surrounding whitespace.
var placeholderRegex = regexp.MustCompile(`\{\{\s*(op://[^}\s]+)\s*\}\}`)

// FindPlaceholders returns every distinct op:// reference used in template
// placeholders within the content, in first-appearance order.
func FindPlaceholders(content string) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, match := range placeholderRegex.FindAllStringSubmatch(content, -1) {
		ref := match[1]
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}
