package attempt

import (
	"regexp"
	"strings"
)

// Commands the agent may never run, regardless of what the ticket says.
// The list targets host damage and outward side effects; anything that only
// touches the workspace is allowed and undone by rollback if it goes wrong.
var deniedPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(^|[;&|]\s*)sudo\b`), "privilege escalation is not permitted"},
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]*\s+)*(/|~|\$HOME)(\s|$)`), "deleting outside the workspace is not permitted"},
	{regexp.MustCompile(`\b(mkfs|fdisk|parted)\b`), "disk operations are not permitted"},
	{regexp.MustCompile(`\bdd\b.*\bof=/dev/`), "raw device writes are not permitted"},
	{regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`), "host power control is not permitted"},
	{regexp.MustCompile(`\bgit\s+push\b`), "pushing to remotes is not permitted"},
	{regexp.MustCompile(`(>>?|\btee\b)\s*/etc/`), "writing to /etc is not permitted"},
	{regexp.MustCompile(`\b(curl|wget)\b.*\|\s*(ba|z|da)?sh\b`), "piping downloads into a shell is not permitted"},
	{regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), "fork bombs are not permitted"},
	{regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]*\s+)*[0-7]*\s*/(\s|$)`), "changing root permissions is not permitted"},
}

// deniedCommand returns a rejection reason for a denylisted command, or ""
// if the command is allowed.
func deniedCommand(cmd string) string {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return "empty command"
	}
	for _, d := range deniedPatterns {
		if d.re.MatchString(trimmed) {
			return d.reason
		}
	}
	return ""
}
