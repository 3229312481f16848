// inject.go materializes ref.* template files into their secret-bearing
// counterparts. A template named "ref.env" becomes ".env"; any other
// "ref.<name>" becomes "<name>" in the same directory. The ref.* originals
// are safe to commit because they contain only op:// references, never
// secret values.
package secret

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/panzer1119/homelabctl/internal/model"
)

// TemplatePrefix marks a file as a secret template.
const TemplatePrefix = "ref."

// outputFileMode is the permission mode for materialized files.
// They contain live secrets, so group/other access is withheld.
const outputFileMode = 0o600

// Template describes one discovered ref.* file and its materialization target.
type Template struct {
	// SourcePath is the ref.* template file.
	SourcePath string `json:"sourcePath"`

	// TargetPath is the file the materialized content is written to,
	// in the same directory as the source.
	TargetPath string `json:"targetPath"`
}

// TargetName maps a template base name to its output base name.
//
//	ref.env        → .env
//	ref.config.yml → config.yml
//
// The ".env" special case preserves the compose convention of hiding the
// env file; every other target keeps its visible name.
func TargetName(templateName string) string {
	trimmed := strings.TrimPrefix(templateName, TemplatePrefix)
	if trimmed == "env" {
		return ".env"
	}
	return trimmed
}

// DiscoverTemplates walks the given paths and returns every ref.* template
// found, sorted by source path. Paths may be template files directly or
// directories to walk. Hidden directories are skipped.
func DiscoverTemplates(paths []string) ([]Template, error) {
	var templates []Template

	addFile := func(path string) {
		dir := filepath.Dir(path)
		templates = append(templates, Template{
			SourcePath: path,
			TargetPath: filepath.Join(dir, TargetName(filepath.Base(path))),
		})
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitNotFound,
				fmt.Sprintf("template path %q not found", root), err)
		}

		if !info.IsDir() {
			if !strings.HasPrefix(filepath.Base(root), TemplatePrefix) {
				return nil, fmt.Errorf("%q is not a secret template: file name must start with %q", root, TemplatePrefix)
			}
			addFile(root)
			continue
		}

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if name := d.Name(); name != "." && len(name) > 1 && name[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), TemplatePrefix) {
				addFile(path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("failed to walk %q: %w", root, walkErr)
		}
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].SourcePath < templates[j].SourcePath
	})
	return templates, nil
}

// envRefLineRegex matches env-file lines whose value is a bare op://
// reference, e.g.:
//
//	SMB_PASSWORD=op://Docker/NAS/password
//
// The key part and the reference are captured separately so the line can be
// rebuilt with the resolved value.
var envRefLineRegex = regexp.MustCompile(`(?m)^(\s*(?:export\s+)?[A-Za-z_][A-Za-z0-9_]*\s*=\s*)(op://\S+)\s*$`)

// Render resolves every secret reference in the template content and
// returns the materialized result. Both placeholder form ({{ op://... }})
// and bare env-value form (KEY=op://...) are handled.
//
// Resolution failures abort rendering: a partially materialized secret file
// is worse than none.
func Render(ctx context.Context, r Resolver, content string) (string, error) {
	// Pass 1: template placeholders.
	var renderErr error
	rendered := placeholderRegex.ReplaceAllStringFunc(content, func(match string) string {
		if renderErr != nil {
			return match
		}
		sub := placeholderRegex.FindStringSubmatch(match)
		value, err := r.Resolve(ctx, sub[1])
		if err != nil {
			renderErr = err
			return match
		}
		return value
	})
	if renderErr != nil {
		return "", renderErr
	}

	// Pass 2: bare references as env values.
	rendered = envRefLineRegex.ReplaceAllStringFunc(rendered, func(match string) string {
		if renderErr != nil {
			return match
		}
		sub := envRefLineRegex.FindStringSubmatch(match)
		value, err := r.Resolve(ctx, sub[2])
		if err != nil {
			renderErr = err
			return match
		}
		return sub[1] + value
	})
	if renderErr != nil {
		return "", renderErr
	}

	return rendered, nil
}

// Materialize renders a single template and writes the result to its
// target path with mode 0600. An existing target is overwritten — the
// materialized file is derived output, never the source of truth.
func Materialize(ctx context.Context, r Resolver, tmpl Template) error {
	data, err := os.ReadFile(tmpl.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to read template %q: %w", tmpl.SourcePath, err)
	}

	rendered, err := Render(ctx, r, string(data))
	if err != nil {
		return fmt.Errorf("template %q: %w", tmpl.SourcePath, err)
	}

	if err := os.WriteFile(tmpl.TargetPath, []byte(rendered), outputFileMode); err != nil {
		return fmt.Errorf("failed to write %q: %w", tmpl.TargetPath, err)
	}

	// os.WriteFile applies the mode only when it creates the file. When the
	// target already existed with wider permissions, tighten them: the file
	// now holds secrets.
	if err := os.Chmod(tmpl.TargetPath, outputFileMode); err != nil {
		return fmt.Errorf("failed to restrict permissions of %q: %w", tmpl.TargetPath, err)
	}
	return nil
}
