package llm

import (
	"fmt"
	"strings"
)

func systemPrompt(req ScriptRequest) string {
	var b strings.Builder
	b.WriteString("You write short podcast scripts in which two hosts discuss a merged pull request.\n")
	fmt.Fprintf(&b, "Host \"a\" is %s and host \"b\" is %s.\n", req.HostAName, req.HostBName)
	b.WriteString(`Respond with JSON only, matching this shape:
{"title": "...", "summary": "...", "turns": [{"host": "a", "text": "..."}, {"host": "b", "text": "..."}]}
Rules:
- "host" must be "a" or "b" and the hosts should alternate naturally.
- Keep the episode conversational, 10 to 20 turns, no stage directions.
- The title names the repository and what the change accomplishes.
- The summary is one or two sentences suitable for a feed entry.
- Discuss what changed, why it matters, and anything notable from the review discussion.`)
	return b.String()
}

func userPrompt(req ScriptRequest) string {
	ctx := req.Context
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", ctx.Repo)
	fmt.Fprintf(&b, "Pull request #%d: %s\n", ctx.PR.Number, ctx.PR.Title)
	fmt.Fprintf(&b, "Author: %s\n", ctx.PR.Author)
	fmt.Fprintf(&b, "Branches: %s -> %s\n", ctx.PR.HeadRef, ctx.PR.BaseRef)
	fmt.Fprintf(&b, "Stats: +%d/-%d across %d files\n", ctx.PR.Additions, ctx.PR.Deletions, ctx.PR.ChangedFiles)
	if body := strings.TrimSpace(ctx.PR.Body); body != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", body)
	}
	if len(ctx.Reviews) > 0 {
		b.WriteString("\nReviews:\n")
		for _, review := range ctx.Reviews {
			fmt.Fprintf(&b, "- %s (%s): %s\n", review.Author, review.State, strings.TrimSpace(review.Body))
		}
	}
	if len(ctx.Comments) > 0 {
		b.WriteString("\nDiscussion:\n")
		for _, comment := range ctx.Comments {
			location := ""
			if comment.Path != "" {
				location = " on " + comment.Path
			}
			fmt.Fprintf(&b, "- %s%s: %s\n", comment.Author, location, strings.TrimSpace(comment.Body))
		}
	}
	if ctx.Diff != "" {
		b.WriteString("\nDiff")
		if ctx.DiffTruncated {
			b.WriteString(" (truncated)")
		}
		b.WriteString(":\n")
		b.WriteString(ctx.Diff)
		b.WriteString("\n")
	}
	return b.String()
}
