package cli

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/mobilebackend/cloudbackend.go/pkg/models"
)

const (
	KindGuestbook   = "Guestbook"
	PropMessage     = "message"
	timestampFormat = "2006-01-02 15:04:05"
)

var domainSuffix = regexp.MustCompile(`@.*`)

// creatorName drops the domain of an email creator.
func creatorName(e *models.Entity) string {
	if e.CreatedBy == "" {
		return "<anonymous>"
	}
	return domainSuffix.ReplaceAllString(e.CreatedBy, "")
}

func formatPost(e *models.Entity) string {
	return fmt.Sprintf("%s %s: %s", e.CreatedAt.Local().Format(timestampFormat), creatorName(e), e.GetString(PropMessage))
}

func printPosts(w io.Writer, posts []*models.Entity) {
	for _, p := range posts {
		fmt.Fprintln(w, formatPost(p))
	}
}

// hashtags returns the distinct #tags of text in order of appearance.
func hashtags(text string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, token := range strings.Fields(text) {
		if len(token) < 2 || !strings.HasPrefix(token, "#") || seen[token] {
			continue
		}
		seen[token] = true
		tags = append(tags, token)
	}
	return tags
}
