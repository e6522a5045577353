package repository

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns a free-text search term into a lower-cased LIKE
// pattern. Wildcards typed by the user match literally; backslash is the
// default LIKE escape character in Postgres.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
