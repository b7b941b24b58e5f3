package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lalomorales22/roundtable/core"
)

var (
	// ```CODE_OUTPUT:<filename>:<language>
	taggedFence = regexp.MustCompile("(?s)```CODE_OUTPUT:([^:\\n]+):([^\\n]+)\\n(.*?)```")
	// ```<filename.ext>:<language>
	bareFence = regexp.MustCompile("(?s)```([A-Za-z0-9_./-]+\\.[A-Za-z0-9]+):([A-Za-z0-9_+#.-]+)[ \\t]*\\n(.*?)```")

	// Written only by Extract when further blocks remain in the reply.
	partial = regexp.MustCompile(`\[Code file '[^'\n]*' added to artifacts; later code blocks kept inline\]`)
)

// Placeholder returns the text that replaces an extracted block.
func Placeholder(filename string) string {
	return fmt.Sprintf("[Code file '%s' added to artifacts]", filename)
}

// PartialPlaceholder replaces the extracted block of a reply that holds
// further blocks. Its presence marks the text as already processed.
func PartialPlaceholder(filename string) string {
	return fmt.Sprintf("[Code file '%s' added to artifacts; later code blocks kept inline]", filename)
}

// Extract pulls the first fenced code block tagged with a filename and
// language out of rawReply. It returns the reply with that block replaced by
// Placeholder and the artifact, or rawReply unchanged and nil when nothing
// matched. Any further fenced blocks stay in the text untouched.
//
// When further blocks remain, the extracted block is replaced by
// PartialPlaceholder instead, and a reply carrying that marker is returned
// unchanged. Running Extract on its own output therefore never yields a
// second artifact, while a plain Placeholder quoted from earlier messages
// does not hide a fresh block.
//
// The returned artifact has Agent, Filename, Language and Content set; the
// caller assigns ConversationID and MessageID.
func Extract(agentName, rawReply string) (string, *core.Artifact) {
	if partial.MatchString(rawReply) {
		return rawReply, nil
	}

	loc, sub := firstBlock(rawReply)
	if loc == nil {
		return rawReply, nil
	}

	filename := strings.TrimSpace(sub[0])
	art := &core.Artifact{
		Agent:    agentName,
		Filename: filename,
		Language: strings.TrimSpace(sub[1]),
		Content:  strings.TrimSpace(sub[2]),
	}

	cleaned := rawReply[:loc[0]] + Placeholder(filename) + rawReply[loc[1]:]
	if more, _ := firstBlock(cleaned); more != nil {
		cleaned = rawReply[:loc[0]] + PartialPlaceholder(filename) + rawReply[loc[1]:]
	}

	return cleaned, art
}

// firstBlock returns the span and captures of the earliest valid block
// matched by either fence form.
func firstBlock(s string) ([]int, []string) {
	var (
		bestLoc []int
		bestSub []string
	)

	for _, re := range []*regexp.Regexp{taggedFence, bareFence} {
		for _, m := range re.FindAllStringSubmatchIndex(s, -1) {
			if bestLoc != nil && m[0] >= bestLoc[0] {
				break
			}
			filename := strings.TrimSpace(s[m[2]:m[3]])
			language := strings.TrimSpace(s[m[4]:m[5]])
			if filename == "" || language == "" || strings.ContainsAny(filename, "'") {
				continue
			}
			bestLoc = []int{m[0], m[1]}
			bestSub = []string{filename, language, s[m[6]:m[7]]}
			break
		}
	}

	return bestLoc, bestSub
}
