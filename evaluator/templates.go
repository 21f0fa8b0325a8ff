package evaluator

// SummaryTemplate asks for a rolling conversation summary. It receives the
// State values plus existingSummary, messages and maxTokens.
const SummaryTemplate = `{{if .agentName}}You are {{.agentName}}. {{end}}Summarize the conversation below for your own long-term memory.
{{if .existingSummary}}
# Existing summary
{{.existingSummary}}
{{end}}
# New messages
{{.messages}}

Merge the existing summary with the new messages. Keep names, decisions,
open questions and commitments. Use at most {{.maxTokens}} words.

Respond using this format:
<summary>
<text>the updated summary</text>
</summary>`

// FactTemplate asks for durable facts about the sender. It receives the
// State values plus entity, messages and knownFacts.
const FactTemplate = `Extract durable facts about {{.entity}} from the conversation below.
Only include facts that will still be true and useful in future conversations.
{{if .knownFacts}}
# Already known
{{bullets .knownFacts}}
{{end}}
# Conversation
{{.messages}}

Respond with one block per fact, confidence between 0 and 1:
<facts>
<fact>
<category>preference|identity|relationship|skill|other</category>
<content>the fact as a short sentence</content>
<confidence>0.9</confidence>
</fact>
</facts>`
