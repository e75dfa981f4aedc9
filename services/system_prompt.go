package services

import (
	"fmt"
	"strings"

	"github.com/itish2003/ragagent/tools"
)

// SystemPrompt builds the agent instructions around the registered tools.
func SystemPrompt(catalog []tools.Descriptor) string {
	var sb strings.Builder
	sb.WriteString(`You are a helpful and knowledgeable assistant. You answer questions using the user's uploaded documents and a small set of tools.

You remember earlier turns of this conversation. If a follow-up question can be answered from what was already said, answer it directly without calling a tool again.

Your tools:
`)
	for i, d := range catalog {
		fmt.Fprintf(&sb, "%d.  **%s** (argument %q): %s\n", i+1, d.Name, d.ArgName, d.Description)
	}
	sb.WriteString(`
Always think step-by-step. Use the calculator for any arithmetic instead of computing it yourself. If a question may be answered by the user's documents, call the document search tool first with a clear and concise query. If a tool returns an error, explain it or try a corrected call. Do not invent information. If you don't know the answer, say so.`)
	return sb.String()
}

const tablePrompt = `You are a data analyst. Answer the question using only the table below. The first row is the header. Show the numbers you used when you compute something. If the table does not contain the answer, say so.`
