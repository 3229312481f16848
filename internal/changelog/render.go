package changelog

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/panzer1119/homelabctl/internal/model"
)

// WriteText renders the changes as indented plain text, one commit per
// block.
func WriteText(w io.Writer, changes []CommitChanges) error {
	for i, commit := range changes {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "commit %s\n", commit.Commit); err != nil {
			return err
		}
		for _, project := range commit.Projects {
			if _, err := fmt.Fprintf(w, "  %s/%s (%s)\n", project.Section, project.Project, project.ChangeType); err != nil {
				return err
			}
			for _, container := range project.Containers {
				line := fmt.Sprintf("    %s: %s", container.ContainerName, container.NewImage)
				if container.OldImage != "" {
					line = fmt.Sprintf("    %s: %s -> %s [%s]", container.ContainerName, container.OldImage, container.NewImage, joinUpdateTypes(container.UpdateTypes))
				}
				if _, err := fmt.Fprintln(w, line); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func joinUpdateTypes(types []model.UpdateType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// htmlPage is the standalone filterable report. The data attributes on
// each container div drive the client-side update-type and change-type
// filters.
const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Commit Container Updates</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        code { background-color: #f4f4f4; padding: 2px 5px; border-radius: 4px; }
        .commit { margin-bottom: 20px; }
        .project { margin-left: 20px; margin-bottom: 10px; }
        .container { margin-left: 40px; }
        .hidden { display: none; }
    </style>
    <script>
        function applyFilters() {
            const updateType = document.getElementById('updateTypeFilter').value;
            const changeType = document.getElementById('changeTypeFilter').value;
            const containers = document.querySelectorAll('.container');

            containers.forEach(container => {
                const updateTypes = container.getAttribute('data-update-types').split(',');
                const changeTypeValue = container.getAttribute('data-change-type');

                const matchesUpdate = !updateType || updateTypes.includes(updateType);
                const matchesChange = !changeType || changeTypeValue === changeType;

                container.style.display = (matchesUpdate && matchesChange) ? 'block' : 'none';
            });
        }
    </script>
</head>
<body>
<h1>Commit Container Updates</h1>
<div>
    <label for="updateTypeFilter">Filter by update_type:</label>
    <select id="updateTypeFilter" onchange="applyFilters()">
        <option value="">All</option>
        <option value="repo">repo</option>
        <option value="user">user</option>
        <option value="image">image</option>
        <option value="tag">tag</option>
        <option value="sha">sha</option>
    </select>
    <label for="changeTypeFilter">Filter by change_type:</label>
    <select id="changeTypeFilter" onchange="applyFilters()">
        <option value="">All</option>
        <option value="created">created</option>
        <option value="updated">updated</option>
    </select>
</div>
<hr>
{{range .}}<div class="commit"><strong>Commit:</strong> <code>{{.Commit}}</code>
{{range .Projects}}{{$changeType := .ChangeType}}<div class="project"><strong>Project:</strong> {{.Project}} <em>({{.Section}})</em><br><strong>Change Type:</strong> {{.ChangeType}}
{{range .Containers}}<div class="container" data-update-types="{{joinTypes .UpdateTypes}}" data-change-type="{{$changeType}}">
    <strong>Container:</strong> {{.ContainerName}}<br>
    <strong>Old Image:</strong> {{.OldImage}}<br>
    <strong>New Image:</strong> {{.NewImage}}<br>
    <strong>Update Types:</strong> {{joinTypesSpaced .UpdateTypes}}
</div>
{{end}}</div>
{{end}}</div>
{{end}}</body>
</html>
`

var htmlTemplate = template.Must(template.New("changes").Funcs(template.FuncMap{
	"joinTypes": func(types []model.UpdateType) string {
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = string(t)
		}
		return strings.Join(parts, ",")
	},
	"joinTypesSpaced": joinUpdateTypes,
}).Parse(htmlPage))

// WriteHTML renders the changes as a standalone HTML page with
// client-side filtering by update type and change type.
func WriteHTML(w io.Writer, changes []CommitChanges) error {
	return htmlTemplate.Execute(w, changes)
}
