package history

import "fmt"

// systemPrompt builds the leading system message. With context it
// instructs the model to answer strictly from the supplied reference
// material; without it, to reply with the configured decline text.
func systemPrompt(context, declineReply string) string {
	if context == "" {
		return fmt.Sprintf(
			"You are a support assistant answering from an internal document knowledge base.\n"+
				"No reference content matched the user's question. Reply exactly with: %q.",
			declineReply,
		)
	}
	return fmt.Sprintf(
		"You are a support assistant answering from an internal document knowledge base.\n"+
			"Answer exclusively based on the reference content below.\n"+
			"If the answer is not clearly contained in it, say: %q.\n\n---\n%s\n---",
		declineReply, context,
	)
}
