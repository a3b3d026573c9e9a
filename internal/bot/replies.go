package bot

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Replies holds the canned-response rules: exact message text to reply,
// and per-user replies keyed by Discord user ID. Loaded from a YAML file
// so server owners can tune them without a rebuild.
type Replies struct {
	Keywords map[string]string `yaml:"keywords"`
	Users    map[string]string `yaml:"users"`
}

// LoadReplies reads the rules file. An empty path yields an empty rule
// set, which disables canned replies entirely.
func LoadReplies(path string) (*Replies, error) {
	if path == "" {
		return &Replies{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replies file: %w", err)
	}

	var r Replies
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing replies file: %w", err)
	}
	return &r, nil
}

// For returns the replies triggered by a message, keyword match first.
func (r *Replies) For(content, authorID string) []string {
	var out []string
	if text, ok := r.Keywords[strings.TrimSpace(content)]; ok {
		out = append(out, text)
	}
	if text, ok := r.Users[authorID]; ok {
		out = append(out, text)
	}
	return out
}
