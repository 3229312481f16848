package changelog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/distribution/reference"

	"github.com/panzer1119/homelabctl/internal/compose"
	"github.com/panzer1119/homelabctl/internal/model"
)

// ContainerChange records one container whose image differs between two
// commits. The JSON field names follow the commits.json layout consumed
// by downstream tooling.
type ContainerChange struct {
	ContainerName string             `json:"container_name"`
	OldImage      string             `json:"old_image"`
	NewImage      string             `json:"new_image"`
	UpdateTypes   []model.UpdateType `json:"update_types"`
}

// ProjectChange groups the container changes of one compose project
// within a commit.
type ProjectChange struct {
	// Project is the compose project name (the compose file's directory).
	Project string `json:"project"`

	// Section is the category directory above the project, e.g. "media"
	// for media/sonarr/docker-compose.yml. "." when the project sits at
	// the repository root.
	Section string `json:"section"`

	// ChangeType is "created" for projects new in this commit and
	// "updated" for projects whose images changed.
	ChangeType model.ChangeType `json:"change_type"`

	Containers []ContainerChange `json:"containers"`
}

// CommitChanges is the full set of image changes introduced by a commit
// relative to its first parent.
type CommitChanges struct {
	Commit   string          `json:"commit"`
	Projects []ProjectChange `json:"projects"`
}

// Diff computes the image changes each commit introduces relative to its
// first parent. Commits without image changes are omitted.
func Diff(repo *Repo, commits []string) ([]CommitChanges, error) {
	var result []CommitChanges
	for _, commit := range commits {
		parent, err := repo.ParentCommit(commit)
		if err != nil {
			return nil, err
		}

		projects, err := diffCommit(repo, parent, commit)
		if err != nil {
			return nil, err
		}
		if len(projects) == 0 {
			continue
		}

		short, err := repo.ShortSHA(commit)
		if err != nil {
			return nil, err
		}
		result = append(result, CommitChanges{Commit: short, Projects: projects})
	}
	return result, nil
}

// serviceImages maps container name to image reference for one compose file.
type serviceImages map[string]string

// diffCommit compares the compose images of a commit against its parent.
func diffCommit(repo *Repo, parent, commit string) ([]ProjectChange, error) {
	oldFiles, err := composeImagesAt(repo, parent)
	if err != nil {
		return nil, err
	}
	newFiles, err := composeImagesAt(repo, commit)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(newFiles))
	for path := range newFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var projects []ProjectChange
	for _, path := range paths {
		oldImages, existed := oldFiles[path]
		newImages := newFiles[path]

		change := ProjectChange{
			Project: compose.StackName(path),
			Section: sectionName(path),
		}

		names := make([]string, 0, len(newImages))
		for name := range newImages {
			names = append(names, name)
		}
		sort.Strings(names)

		if !existed {
			change.ChangeType = model.ChangeCreated
			for _, name := range names {
				change.Containers = append(change.Containers, ContainerChange{
					ContainerName: name,
					NewImage:      newImages[name],
				})
			}
		} else {
			change.ChangeType = model.ChangeUpdated
			for _, name := range names {
				oldImage, had := oldImages[name]
				newImage := newImages[name]
				if !had {
					change.Containers = append(change.Containers, ContainerChange{
						ContainerName: name,
						NewImage:      newImage,
					})
					continue
				}
				if oldImage == newImage {
					continue
				}
				types, err := ClassifyUpdate(oldImage, newImage)
				if err != nil {
					return nil, err
				}
				change.Containers = append(change.Containers, ContainerChange{
					ContainerName: name,
					OldImage:      oldImage,
					NewImage:      newImage,
					UpdateTypes:   types,
				})
			}
		}

		if len(change.Containers) > 0 {
			projects = append(projects, change)
		}
	}
	return projects, nil
}

// composeImagesAt collects every compose file in the commit's tree and
// its container-name-to-image mapping. Compose files that fail to parse
// are skipped: a historical commit may predate the current conventions,
// and one broken file should not sink the whole changelog.
func composeImagesAt(repo *Repo, commit string) (map[string]serviceImages, error) {
	files, err := repo.ListComposeFiles(commit)
	if err != nil {
		return nil, err
	}

	result := make(map[string]serviceImages, len(files))
	for _, path := range files {
		data, err := repo.ShowFile(commit, path)
		if err != nil {
			return nil, err
		}
		parsed, err := compose.Parse(data)
		if err != nil {
			continue
		}

		images := make(serviceImages)
		for serviceName, service := range parsed.Services {
			if service.Image == "" {
				continue
			}
			name := service.ContainerName
			if name == "" {
				name = serviceName
			}
			images[name] = service.Image
		}
		if len(images) > 0 {
			result[path] = images
		}
	}
	return result, nil
}

// sectionName returns the directory above the project directory, or "."
// for projects directly under the repository root.
func sectionName(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return "."
	}
	return parts[len(parts)-3]
}

// imageParts is the decomposition of an image reference used for
// classification.
type imageParts struct {
	domain string
	user   string
	name   string
	tag    string
	digest string
}

// splitImage normalizes and decomposes an image reference. The user is
// the namespace portion of the path ("" for top-level images such as
// library/redis on Docker Hub).
func splitImage(image string) (imageParts, error) {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return imageParts{}, model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("invalid image reference %q", image), err)
	}

	parts := imageParts{domain: reference.Domain(named)}

	path := reference.Path(named)
	if i := strings.LastIndex(path, "/"); i >= 0 {
		parts.user = path[:i]
		parts.name = path[i+1:]
	} else {
		parts.name = path
	}

	if tagged, ok := named.(reference.Tagged); ok {
		parts.tag = tagged.Tag()
	}
	if digested, ok := named.(reference.Digested); ok {
		parts.digest = digested.Digest().String()
	}
	return parts, nil
}

// ClassifyUpdate determines which components differ between two image
// references: registry (repo), namespace (user), image name, tag, and
// digest (sha). The returned slice is ordered broadest to narrowest.
func ClassifyUpdate(oldImage, newImage string) ([]model.UpdateType, error) {
	oldParts, err := splitImage(oldImage)
	if err != nil {
		return nil, err
	}
	newParts, err := splitImage(newImage)
	if err != nil {
		return nil, err
	}

	var types []model.UpdateType
	if oldParts.domain != newParts.domain {
		types = append(types, model.UpdateRepo)
	}
	if oldParts.user != newParts.user {
		types = append(types, model.UpdateUser)
	}
	if oldParts.name != newParts.name {
		types = append(types, model.UpdateImage)
	}
	if oldParts.tag != newParts.tag {
		types = append(types, model.UpdateTag)
	}
	if oldParts.digest != newParts.digest {
		types = append(types, model.UpdateSHA)
	}
	return types, nil
}
