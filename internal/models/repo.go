package models

import (
	"fmt"
	"net/url"
	"strings"
)

// RepoName identifies a GitHub repository.
type RepoName struct {
	Owner string
	Name  string
}

// ParseRepoName accepts "owner/repo", "owner/repo.git" or a repository URL
// such as https://github.com/owner/repo/issues.
func ParseRepoName(input string) (RepoName, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return RepoName{}, fmt.Errorf("empty repository")
	}

	path := input
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		u, err := url.Parse(input)
		if err != nil {
			return RepoName{}, fmt.Errorf("invalid repository URL %q: %w", input, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return RepoName{}, fmt.Errorf("repository URL %q has no owner/repo path", input)
		}
		path = parts[0] + "/" + parts[1]
	}

	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoName{}, fmt.Errorf("invalid repository %q: expected a GitHub URL or owner/repo", input)
	}

	return RepoName{Owner: parts[0], Name: parts[1]}, nil
}

// FullName returns "owner/name".
func (r RepoName) FullName() string {
	return r.Owner + "/" + r.Name
}

// Slug returns the name with "/" replaced by "_", used to key the database file and collection.
func (r RepoName) Slug() string {
	return strings.ReplaceAll(r.FullName(), "/", "_")
}

func (r RepoName) String() string {
	return r.FullName()
}
