package build

import "strings"

var (
	Version = "dev"
	AppName = "Subsh"
	Slug    = ""
)

func init() {
	if Slug == "" {
		Slug = strings.ToLower(AppName)
	}
}
